package model

import (
	"fmt"
	"strings"
)

// Group is an identity group that can be targeted by an assignment
type Group struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"displayName,omitempty" json:"displayName,omitempty"`
}

// App is a managed application whose assignment list is edited
type App struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	AppType     string `yaml:"appType,omitempty" json:"appType,omitempty"`
}

// Intent is the assignment disposition of a group for an app
type Intent string

const (
	IntentRequired                   Intent = "required"
	IntentAvailable                  Intent = "available"
	IntentUninstall                  Intent = "uninstall"
	IntentAvailableWithoutEnrollment Intent = "availableWithoutEnrollment"
)

var intents = []Intent{IntentRequired, IntentAvailable, IntentUninstall, IntentAvailableWithoutEnrollment}

// ParseIntent resolves an intent name case-insensitively
func ParseIntent(s string) (Intent, error) {
	name := strings.TrimSpace(s)
	for _, intent := range intents {
		if strings.EqualFold(name, string(intent)) {
			return intent, nil
		}
	}
	return "", &InvalidInputError{Field: "intent", Reason: fmt.Sprintf("unknown intent %q", s)}
}

// Valid reports whether the intent is one of the known dispositions
func (i Intent) Valid() bool {
	for _, intent := range intents {
		if i == intent {
			return true
		}
	}
	return false
}

// FilterMode selects whether an assignment filter includes or excludes matching devices
type FilterMode string

const (
	FilterInclude FilterMode = "include"
	FilterExclude FilterMode = "exclude"
)

// ParseFilterMode resolves a filter mode, defaulting to include when empty
func ParseFilterMode(s string) (FilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FilterInclude):
		return FilterInclude, nil
	case string(FilterExclude):
		return FilterExclude, nil
	default:
		return "", &InvalidInputError{Field: "filter.mode", Reason: fmt.Sprintf("unknown filter mode %q", s)}
	}
}

// FilterRef points at an assignment filter applied to every target of an operation
type FilterRef struct {
	ID   string     `yaml:"id" json:"id"`
	Mode FilterMode `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// AssignmentTarget is one assignment edge between an app and a group.
// AssignmentID is the remote identifier of an existing edge and never takes part in equality
type AssignmentTarget struct {
	GroupID      string     `yaml:"groupId" json:"groupId"`
	Intent       Intent     `yaml:"intent" json:"intent"`
	FilterID     string     `yaml:"filterId,omitempty" json:"filterId,omitempty"`
	FilterMode   FilterMode `yaml:"filterMode,omitempty" json:"filterMode,omitempty"`
	AssignmentID string     `yaml:"assignmentId,omitempty" json:"assignmentId,omitempty"`
}

// Equivalent reports whether two targets carry the same intent and filter
func (t AssignmentTarget) Equivalent(other AssignmentTarget) bool {
	if t.Intent != other.Intent || t.FilterID != other.FilterID {
		return false
	}
	if t.FilterID == "" {
		return true
	}
	return t.effectiveMode() == other.effectiveMode()
}

func (t AssignmentTarget) effectiveMode() FilterMode {
	if t.FilterMode == "" {
		return FilterInclude
	}
	return t.FilterMode
}

// Describe renders the target as "intent" or "intent [mode filter]"
func (t AssignmentTarget) Describe() string {
	if t.FilterID == "" {
		return string(t.Intent)
	}
	return fmt.Sprintf("%s [%s %s]", t.Intent, t.effectiveMode(), t.FilterID)
}

// AppAssignmentState is the assignment list of one app, at most one target per group
type AppAssignmentState struct {
	AppID   string             `yaml:"appId" json:"appId"`
	Targets []AssignmentTarget `yaml:"targets" json:"targets"`
}

// Validate checks the one-target-per-group invariant
func (s AppAssignmentState) Validate() error {
	if s.AppID == "" {
		return &InvalidInputError{Field: "appId", Reason: "app state must have an app id"}
	}
	seen := make(map[string]bool, len(s.Targets))
	for _, target := range s.Targets {
		if target.GroupID == "" {
			return &InvalidInputError{Field: "groupId", Reason: fmt.Sprintf("app %s has a target without a group id", s.AppID)}
		}
		if seen[target.GroupID] {
			return &InvalidInputError{Field: "targets", Reason: fmt.Sprintf("app %s has more than one target for group %s", s.AppID, target.GroupID)}
		}
		seen[target.GroupID] = true
	}
	return nil
}

// Index returns the targets keyed by group id
func (s AppAssignmentState) Index() map[string]AssignmentTarget {
	index := make(map[string]AssignmentTarget, len(s.Targets))
	for _, target := range s.Targets {
		index[target.GroupID] = target
	}
	return index
}

// GroupIDs returns the group ids of the state in target order
func (s AppAssignmentState) GroupIDs() []string {
	ids := make([]string, 0, len(s.Targets))
	for _, target := range s.Targets {
		ids = append(ids, target.GroupID)
	}
	return ids
}

// DesiredMatrix is the groups × apps product under one intent, built fresh per operation
type DesiredMatrix struct {
	Intent Intent               `yaml:"intent" json:"intent"`
	Filter *FilterRef           `yaml:"filter,omitempty" json:"filter,omitempty"`
	Groups []Group              `yaml:"groups" json:"groups"`
	Apps   []App                `yaml:"apps" json:"apps"`
	States []AppAssignmentState `yaml:"states" json:"states"`
}

// Scope returns the group ids the operation is allowed to touch
func (m DesiredMatrix) Scope() []string {
	scope := make([]string, 0, len(m.Groups))
	for _, group := range m.Groups {
		scope = append(scope, group.ID)
	}
	return scope
}

// AppIDs returns the app ids in the order they were supplied
func (m DesiredMatrix) AppIDs() []string {
	ids := make([]string, 0, len(m.Apps))
	for _, app := range m.Apps {
		ids = append(ids, app.ID)
	}
	return ids
}

// Len returns the number of target entries in the matrix
func (m DesiredMatrix) Len() int {
	n := 0
	for _, state := range m.States {
		n += len(state.Targets)
	}
	return n
}
