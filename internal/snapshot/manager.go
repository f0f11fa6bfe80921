// Package snapshot captures assignment state into restorable documents and
// plans restores through the regular differ
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sourceplane/assignctl/internal/fetch"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/planner"
)

// Manager captures and restores snapshots using a State Fetcher
type Manager struct {
	fetcher *fetch.Fetcher
	now     func() time.Time
}

// NewManager creates a manager. now defaults to time.Now
func NewManager(fetcher *fetch.Fetcher, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{fetcher: fetcher, now: now}
}

// Capture reads the current state of every app and wraps it with a
// timestamp and id. Apps that could not be read are returned as failures and
// are absent from the snapshot
func (m *Manager) Capture(ctx context.Context, appIDs []string) (*model.Snapshot, []model.FetchFailure, error) {
	result, err := m.fetcher.Fetch(ctx, appIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}

	snap := &model.Snapshot{
		ID:      uuid.NewString(),
		TakenAt: m.now().UTC(),
		States:  make([]model.AppAssignmentState, 0, len(result.States)),
	}
	for _, appID := range appIDs {
		state, ok := result.States[appID]
		if !ok || containsApp(snap.States, appID) {
			continue
		}
		snap.States = append(snap.States, state)
	}
	return snap, result.Failures, nil
}

// PlanRestore diffs the snapshot, taken as desired state, against live state.
// The scope is every group that appears anywhere in the snapshot
func (m *Manager) PlanRestore(ctx context.Context, snap *model.Snapshot) (*model.DiffSet, error) {
	if snap == nil {
		return nil, &model.InvalidInputError{Field: "snapshot", Reason: "snapshot cannot be nil"}
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	appIDs := snap.AppIDs()
	scope := snap.GroupIDs()

	live, err := m.fetcher.Fetch(ctx, appIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read live state: %w", err)
	}

	desired := make([]model.AppAssignmentState, 0, len(snap.States))
	for _, state := range snap.States {
		desired = append(desired, withoutAssignmentIDs(state))
	}

	ops, err := planner.NewDiffer(scope).Diff(desired, live.States)
	if err != nil {
		return nil, fmt.Errorf("failed to diff snapshot against live state: %w", err)
	}

	meta := model.Metadata{Name: "restore-" + snap.ID, Description: "restore of snapshot taken " + snap.TakenAt.Format(time.RFC3339)}
	return planner.NewDiffSet(meta, scope, appIDs, ops, live.Failures), nil
}

// withoutAssignmentIDs drops remote ids recorded at capture time; edges that
// were deleted since then come back under new ids
func withoutAssignmentIDs(state model.AppAssignmentState) model.AppAssignmentState {
	out := model.AppAssignmentState{AppID: state.AppID, Targets: make([]model.AssignmentTarget, 0, len(state.Targets))}
	for _, target := range state.Targets {
		target.AssignmentID = ""
		out.Targets = append(out.Targets, target)
	}
	return out
}

func containsApp(states []model.AppAssignmentState, appID string) bool {
	for _, state := range states {
		if state.AppID == appID {
			return true
		}
	}
	return false
}
