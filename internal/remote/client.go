// Package remote defines the contract between the reconciliation engine and the
// device-management service that owns app assignment lists
package remote

import (
	"context"

	"github.com/sourceplane/assignctl/internal/model"
)

// Client reads and mutates the assignment list of one app at a time.
//
// FetchAssignments returns the current group targets of an app with their
// remote assignment ids populated. MutateAssignment applies a single add,
// update or remove; update and remove address the existing edge through
// op.PreviousTarget.AssignmentID
type Client interface {
	FetchAssignments(ctx context.Context, appID string) (model.AppAssignmentState, error)
	MutateAssignment(ctx context.Context, appID string, op model.DiffOperation) error
}

// Directory resolves group and app references to their display metadata
type Directory interface {
	GetGroup(ctx context.Context, id string) (model.Group, error)
	GetApp(ctx context.Context, id string) (model.App, error)
}
