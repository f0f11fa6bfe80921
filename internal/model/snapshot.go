package model

import (
	"fmt"
	"time"
)

// Snapshot is a point-in-time capture of the assignment state of a set of apps
type Snapshot struct {
	ID      string               `json:"id" yaml:"id"`
	TakenAt time.Time            `json:"takenAt" yaml:"takenAt"`
	States  []AppAssignmentState `json:"states" yaml:"states"`
}

// Validate checks every captured state and that no app appears twice
func (s *Snapshot) Validate() error {
	seen := make(map[string]bool, len(s.States))
	for _, state := range s.States {
		if err := state.Validate(); err != nil {
			return err
		}
		if seen[state.AppID] {
			return &InvalidInputError{Field: "states", Reason: fmt.Sprintf("app %s captured more than once", state.AppID)}
		}
		seen[state.AppID] = true
	}
	return nil
}

// AppIDs returns the captured app ids in snapshot order
func (s *Snapshot) AppIDs() []string {
	ids := make([]string, 0, len(s.States))
	for _, state := range s.States {
		ids = append(ids, state.AppID)
	}
	return ids
}

// GroupIDs returns every group id present in the snapshot, first occurrence order
func (s *Snapshot) GroupIDs() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, state := range s.States {
		for _, target := range state.Targets {
			if seen[target.GroupID] {
				continue
			}
			seen[target.GroupID] = true
			ids = append(ids, target.GroupID)
		}
	}
	return ids
}
