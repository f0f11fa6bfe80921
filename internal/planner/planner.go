package planner

import (
	"fmt"

	"github.com/sourceplane/assignctl/internal/model"
)

// Differ reconciles desired assignment state against current state for a
// fixed scope of groups. Groups outside the scope are never touched
type Differ struct {
	scope map[string]bool
}

// NewDiffer creates a differ fenced to the given group ids
func NewDiffer(scope []string) *Differ {
	fence := make(map[string]bool, len(scope))
	for _, id := range scope {
		fence[id] = true
	}
	return &Differ{scope: fence}
}

// InScope reports whether a group may be added, updated or removed
func (d *Differ) InScope(groupID string) bool {
	return d.scope[groupID]
}

// Diff produces the ordered operation set for every app present in both
// desired and current. Apps keep the order they have in desired; within an
// app, updates and removals come before adds
func (d *Differ) Diff(desired []model.AppAssignmentState, current map[string]model.AppAssignmentState) ([]model.DiffOperation, error) {
	merged, order, err := d.mergeDesired(desired)
	if err != nil {
		return nil, err
	}

	ops := make([]model.DiffOperation, 0)
	for _, appID := range order {
		cur, exists := current[appID]
		if !exists {
			continue
		}
		ops = append(ops, d.diffApp(appID, merged[appID], cur)...)
	}

	return ops, nil
}

// mergeDesired folds repeated app entries together and rejects pairs that
// would receive two different targets or fall outside the scope
func (d *Differ) mergeDesired(desired []model.AppAssignmentState) (map[string][]model.AssignmentTarget, []string, error) {
	merged := make(map[string][]model.AssignmentTarget, len(desired))
	seen := make(map[string]map[string]model.AssignmentTarget, len(desired))
	order := make([]string, 0, len(desired))

	for _, state := range desired {
		if state.AppID == "" {
			return nil, nil, &model.InvalidInputError{Field: "appId", Reason: "desired state must have an app id"}
		}
		if _, exists := seen[state.AppID]; !exists {
			seen[state.AppID] = make(map[string]model.AssignmentTarget)
			order = append(order, state.AppID)
		}
		byGroup := seen[state.AppID]

		for _, target := range state.Targets {
			if !d.InScope(target.GroupID) {
				return nil, nil, &model.ScopeConflictError{
					AppID:   state.AppID,
					GroupID: target.GroupID,
					Reason:  "group is outside the operation scope",
				}
			}
			if first, dup := byGroup[target.GroupID]; dup {
				if !first.Equivalent(target) {
					return nil, nil, &model.ScopeConflictError{
						AppID:   state.AppID,
						GroupID: target.GroupID,
						First:   first,
						Second:  target,
					}
				}
				continue
			}
			byGroup[target.GroupID] = target
			merged[state.AppID] = append(merged[state.AppID], target)
		}
	}

	return merged, order, nil
}

// diffApp compares one app's desired targets with its current targets
func (d *Differ) diffApp(appID string, desired []model.AssignmentTarget, current model.AppAssignmentState) []model.DiffOperation {
	currentIndex := current.Index()
	desiredIndex := make(map[string]bool, len(desired))

	changes := make([]model.DiffOperation, 0, len(desired))
	adds := make([]model.DiffOperation, 0)

	for _, want := range desired {
		desiredIndex[want.GroupID] = true
		have, exists := currentIndex[want.GroupID]
		switch {
		case !exists:
			adds = append(adds, model.DiffOperation{AppID: appID, Kind: model.OpAdd, Target: want})
		case have.Equivalent(want):
			changes = append(changes, model.DiffOperation{AppID: appID, Kind: model.OpNoop, Target: have})
		default:
			want.AssignmentID = have.AssignmentID
			previous := have
			changes = append(changes, model.DiffOperation{AppID: appID, Kind: model.OpUpdate, Target: want, PreviousTarget: &previous})
		}
	}

	for _, have := range current.Targets {
		if desiredIndex[have.GroupID] {
			continue
		}
		if !d.InScope(have.GroupID) {
			changes = append(changes, model.DiffOperation{AppID: appID, Kind: model.OpNoop, Target: have, Fenced: true})
			continue
		}
		previous := have
		changes = append(changes, model.DiffOperation{AppID: appID, Kind: model.OpRemove, Target: have, PreviousTarget: &previous})
	}

	return append(changes, adds...)
}

// Summary renders operation counts as "add=2 update=1 remove=0 noop=3"
func Summary(ops []model.DiffOperation) string {
	counts := make(map[model.OperationKind]int, 4)
	for _, op := range ops {
		counts[op.Kind]++
	}
	return fmt.Sprintf("add=%d update=%d remove=%d noop=%d",
		counts[model.OpAdd], counts[model.OpUpdate], counts[model.OpRemove], counts[model.OpNoop])
}

// NewDiffSet wraps an op set into a plan document. Slices are never nil so
// the document always carries empty lists rather than nulls
func NewDiffSet(metadata model.Metadata, scope, apps []string, ops []model.DiffOperation, failures []model.FetchFailure) *model.DiffSet {
	return &model.DiffSet{
		APIVersion:    model.APIVersion,
		Kind:          model.KindPlan,
		Metadata:      metadata,
		Scope:         append([]string{}, scope...),
		Apps:          append([]string{}, apps...),
		Operations:    append([]model.DiffOperation{}, ops...),
		FetchFailures: failures,
	}
}
