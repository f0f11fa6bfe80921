package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourceplane/assignctl/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════\n"

// PlanViewer provides a human-readable tree of a plan, grouped by app
type PlanViewer struct {
	plan *model.DiffSet
}

// NewPlanViewer creates a new plan viewer
func NewPlanViewer(plan *model.DiffSet) *PlanViewer {
	return &PlanViewer{plan: plan}
}

// appOps groups operations by app, apps in plan order
func appOps(ops []model.DiffOperation) ([]string, map[string][]model.DiffOperation) {
	byApp := make(map[string][]model.DiffOperation)
	order := make([]string, 0)
	for _, op := range ops {
		if _, seen := byApp[op.AppID]; !seen {
			order = append(order, op.AppID)
		}
		byApp[op.AppID] = append(byApp[op.AppID], op)
	}
	return order, byApp
}

// ViewTree returns the plan as a tree: apps, then their operations in execution order.
// Unchanged and out-of-scope assignments are shown only when showNoop is set
func (pv *PlanViewer) ViewTree(showNoop bool) string {
	if len(pv.plan.Operations) == 0 && len(pv.plan.FetchFailures) == 0 {
		return "No operations in plan"
	}

	order, byApp := appOps(pv.plan.Operations)

	var sb strings.Builder
	for i, appID := range order {
		isLastApp := i == len(order)-1 && len(pv.plan.FetchFailures) == 0

		ops := byApp[appID]
		if !showNoop {
			ops = changesOnly(ops)
		}

		appPrefix := "├─ "
		connector := "│  "
		if isLastApp {
			appPrefix = "└─ "
			connector = "   "
		}
		fmt.Fprintf(&sb, "%s%s (%s)\n", appPrefix, appID, summarize(byApp[appID]))

		for j, op := range ops {
			opPrefix := connector + "├─ "
			if j == len(ops)-1 {
				opPrefix = connector + "└─ "
			}
			sb.WriteString(opPrefix + describeOp(op) + "\n")
		}
	}

	for i, failure := range pv.plan.FetchFailures {
		prefix := "├─ "
		if i == len(pv.plan.FetchFailures)-1 {
			prefix = "└─ "
		}
		fmt.Fprintf(&sb, "%s%s ✗ not read (%s): %s\n", prefix, failure.AppID, failure.Kind, failure.Message)
	}

	sb.WriteString(rule)
	counts := pv.plan.Counts()
	fmt.Fprintf(&sb, "Summary: %d apps, %d groups in scope, %d add, %d update, %d remove, %d unchanged",
		len(order), len(pv.plan.Scope), counts[model.OpAdd], counts[model.OpUpdate], counts[model.OpRemove], counts[model.OpNoop])
	if n := len(pv.plan.FetchFailures); n > 0 {
		fmt.Fprintf(&sb, ", %d apps not read", n)
	}
	sb.WriteString("\n")

	return sb.String()
}

// ViewByApp shows every operation planned for one app
func (pv *PlanViewer) ViewByApp(appID string) string {
	_, byApp := appOps(pv.plan.Operations)
	ops, ok := byApp[appID]
	if !ok {
		return fmt.Sprintf("No operations found for app: %s", appID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", appID, summarize(ops))
	sb.WriteString(rule)
	for i, op := range ops {
		prefix := "├─ "
		if i == len(ops)-1 {
			prefix = "└─ "
		}
		sb.WriteString(prefix + describeOp(op) + "\n")
	}
	return sb.String()
}

// ViewReport renders the per-item result report of a run, grouped by outcome
func ViewReport(report *model.RunReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s (%s)\n", report.ID, report.Kind)
	if report.SnapshotRef != "" {
		fmt.Fprintf(&sb, "Snapshot: %s\n", report.SnapshotRef)
	}
	sb.WriteString(rule)

	for _, outcome := range []model.Outcome{model.OutcomeFailed, model.OutcomeSkipped, model.OutcomeSuccess} {
		var lines []string
		for _, result := range report.Results {
			if result.Outcome != outcome {
				continue
			}
			// Unchanged pairs are noise in a report.
			if result.Operation.Kind == model.OpNoop {
				continue
			}
			lines = append(lines, describeResult(result))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s (%d)\n", outcome, len(lines))
		for i, line := range lines {
			prefix := "├─ "
			if i == len(lines)-1 {
				prefix = "└─ "
			}
			sb.WriteString(prefix + line + "\n")
		}
	}

	succeeded, failed, skipped := report.Tally()
	sb.WriteString(rule)
	fmt.Fprintf(&sb, "Summary: %d succeeded, %d failed, %d skipped\n", succeeded, failed, skipped)
	if report.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", report.Error)
	}
	return sb.String()
}

func describeOp(op model.DiffOperation) string {
	switch op.Kind {
	case model.OpUpdate:
		return fmt.Sprintf("update %s: %s → %s", op.Target.GroupID, op.PreviousTarget.Describe(), op.Target.Describe())
	case model.OpNoop:
		if op.Fenced {
			return fmt.Sprintf("noop   %s: %s (out of scope)", op.Target.GroupID, op.Target.Describe())
		}
		return fmt.Sprintf("noop   %s: %s", op.Target.GroupID, op.Target.Describe())
	default:
		return fmt.Sprintf("%-6s %s: %s", op.Kind, op.Target.GroupID, op.Target.Describe())
	}
}

func describeResult(result model.OperationResult) string {
	op := result.Operation
	line := fmt.Sprintf("%s %s %s → %s", op.AppID, op.Kind, op.Target.GroupID, op.Target.Describe())
	if result.ErrorKind != "" {
		line += fmt.Sprintf(" [%s]", result.ErrorKind)
	}
	if result.Detail != "" {
		line += ": " + result.Detail
	}
	if result.RetriesUsed > 0 {
		line += fmt.Sprintf(" (retry:%dx)", result.RetriesUsed)
	}
	return line
}

func changesOnly(ops []model.DiffOperation) []model.DiffOperation {
	out := make([]model.DiffOperation, 0, len(ops))
	for _, op := range ops {
		if op.Mutates() {
			out = append(out, op)
		}
	}
	return out
}

// summarize renders per-kind counts as "1 add, 2 noop"
func summarize(ops []model.DiffOperation) string {
	counts := make(map[model.OperationKind]int)
	for _, op := range ops {
		counts[op.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", counts[model.OperationKind(kind)], kind))
	}
	return strings.Join(parts, ", ")
}
