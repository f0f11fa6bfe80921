package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourceplane/assignctl/internal/model"
	"gopkg.in/yaml.v3"
)

// Renderer serializes plans and run reports
type Renderer struct{}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON renders a plan or report as indented JSON
func (r *Renderer) RenderJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// RenderYAML renders a plan or report as YAML
func (r *Renderer) RenderYAML(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// WritePlan writes a plan to file (JSON or YAML based on extension)
func (r *Renderer) WritePlan(plan *model.DiffSet, path string) error {
	return r.write(plan, path, "plan")
}

// WriteReport writes a run report to file (JSON or YAML based on extension)
func (r *Renderer) WriteReport(report *model.RunReport, path string) error {
	return r.write(report, path, "report")
}

func (r *Renderer) write(v any, path, what string) error {
	var data []byte
	var err error

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = r.RenderYAML(v)
	default:
		data, err = r.RenderJSON(v)
	}
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", what, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s to %s: %w", what, path, err)
	}

	return nil
}

// DebugDump outputs debug information about the plan
func (r *Renderer) DebugDump(plan *model.DiffSet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan: %s\n", plan.Metadata.Name)
	fmt.Fprintf(&sb, "Scope: %s\n", strings.Join(plan.Scope, ", "))
	fmt.Fprintf(&sb, "Apps: %d\n", len(plan.Apps))
	fmt.Fprintf(&sb, "Operations: %d\n\n", len(plan.Operations))

	for i, op := range plan.Operations {
		fmt.Fprintf(&sb, "%3d  %-6s %s %s → %s", i, op.Kind, op.AppID, op.Target.GroupID, op.Target.Describe())
		if op.PreviousTarget != nil {
			fmt.Fprintf(&sb, " (was %s)", op.PreviousTarget.Intent)
		}
		if op.Fenced {
			sb.WriteString(" [out of scope]")
		}
		sb.WriteString("\n")
	}
	for _, failure := range plan.FetchFailures {
		fmt.Fprintf(&sb, "fetch failed: %s (%s, %d retries): %s\n", failure.AppID, failure.Kind, failure.Retries, failure.Message)
	}

	return sb.String()
}
