package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates a malformed call: empty sets, unknown intents,
	// filters on uninstall intents. It is never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrScopeConflict indicates a contradictory desired state that would give one
	// (app, group) pair two targets or touch a group outside the operation scope.
	ErrScopeConflict = errors.New("scope conflict")
)

// InvalidInputError describes which field of a request was rejected
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// ScopeConflictError names the (app, group) pair whose desired state is contradictory
type ScopeConflictError struct {
	AppID   string
	GroupID string
	First   AssignmentTarget
	Second  AssignmentTarget
	Reason  string
}

func (e *ScopeConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("scope conflict on app %s group %s: %s", e.AppID, e.GroupID, e.Reason)
	}
	return fmt.Sprintf("scope conflict on app %s group %s: desired both %s and %s",
		e.AppID, e.GroupID, e.First.Describe(), e.Second.Describe())
}

func (e *ScopeConflictError) Is(target error) bool { return target == ErrScopeConflict }
