package planner

import (
	"fmt"

	"github.com/sourceplane/assignctl/internal/model"
)

// Batch is the ordered slice of operations for one app. Indexes map each
// operation back to its position in the original op set
type Batch struct {
	AppID      string
	Indexes    []int
	Operations []model.DiffOperation
}

// BatchByApp splits an op set into per-app batches, apps in first-seen order
// and operations in their original order
func BatchByApp(ops []model.DiffOperation) []Batch {
	position := make(map[string]int)
	batches := make([]Batch, 0)

	for i, op := range ops {
		idx, exists := position[op.AppID]
		if !exists {
			idx = len(batches)
			position[op.AppID] = idx
			batches = append(batches, Batch{AppID: op.AppID})
		}
		batches[idx].Indexes = append(batches[idx].Indexes, i)
		batches[idx].Operations = append(batches[idx].Operations, op)
	}

	return batches
}

// CheckOrdering verifies an op set before it is executed: within one app no
// add precedes an update or removal, no group is mutated twice, and updates
// and removals name the assignment they replace
func CheckOrdering(ops []model.DiffOperation) error {
	for _, batch := range BatchByApp(ops) {
		if batch.AppID == "" {
			return &model.InvalidInputError{Field: "operations", Reason: "operation without an app id"}
		}

		sawAdd := false
		mutated := make(map[string]bool)
		for _, op := range batch.Operations {
			switch op.Kind {
			case model.OpNoop:
				continue
			case model.OpAdd:
				sawAdd = true
			case model.OpUpdate, model.OpRemove:
				if sawAdd {
					return &model.InvalidInputError{Field: "operations",
						Reason: fmt.Sprintf("app %s: %s of group %s is ordered after an add", batch.AppID, op.Kind, op.Target.GroupID)}
				}
				if op.PreviousTarget == nil || op.PreviousTarget.AssignmentID == "" {
					return &model.InvalidInputError{Field: "operations",
						Reason: fmt.Sprintf("app %s: %s of group %s has no previous assignment id", batch.AppID, op.Kind, op.Target.GroupID)}
				}
			default:
				return &model.InvalidInputError{Field: "operations",
					Reason: fmt.Sprintf("app %s: unknown operation kind %q", batch.AppID, op.Kind)}
			}

			if mutated[op.Target.GroupID] {
				return &model.ScopeConflictError{AppID: batch.AppID, GroupID: op.Target.GroupID,
					Reason: "group is mutated more than once"}
			}
			mutated[op.Target.GroupID] = true
		}
	}
	return nil
}
