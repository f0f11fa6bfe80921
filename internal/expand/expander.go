package expand

import (
	"fmt"

	"github.com/sourceplane/assignctl/internal/model"
)

// Expander handles group × app expansion into a desired matrix
type Expander struct {
	groups []model.Group
	apps   []model.App
	intent model.Intent
	filter *model.FilterRef
}

// NewExpander creates a new expander
func NewExpander(groups []model.Group, apps []model.App, intent model.Intent, filter *model.FilterRef) *Expander {
	return &Expander{
		groups: groups,
		apps:   apps,
		intent: intent,
		filter: filter,
	}
}

// FromNormalized creates an expander for a normalized request
func FromNormalized(normalized *model.NormalizedAssignment) *Expander {
	return NewExpander(normalized.Groups, normalized.Apps, normalized.Intent, normalized.Filter)
}

// Expand produces one target per (app, group) pair, apps outer and groups inner
func (e *Expander) Expand() (model.DesiredMatrix, error) {
	if err := e.validate(); err != nil {
		return model.DesiredMatrix{}, err
	}

	var filter *model.FilterRef
	if e.filter != nil {
		mode := e.filter.Mode
		if mode == "" {
			mode = model.FilterInclude
		}
		filter = &model.FilterRef{ID: e.filter.ID, Mode: mode}
	}

	matrix := model.DesiredMatrix{
		Intent: e.intent,
		Filter: filter,
		Groups: append([]model.Group(nil), e.groups...),
		Apps:   append([]model.App(nil), e.apps...),
		States: make([]model.AppAssignmentState, 0, len(e.apps)),
	}

	for _, app := range e.apps {
		state := model.AppAssignmentState{
			AppID:   app.ID,
			Targets: make([]model.AssignmentTarget, 0, len(e.groups)),
		}
		for _, group := range e.groups {
			target := model.AssignmentTarget{GroupID: group.ID, Intent: e.intent}
			if filter != nil {
				target.FilterID = filter.ID
				target.FilterMode = filter.Mode
			}
			state.Targets = append(state.Targets, target)
		}
		matrix.States = append(matrix.States, state)
	}

	return matrix, nil
}

// validate rejects call shapes the remote service would only fail on asynchronously
func (e *Expander) validate() error {
	if len(e.groups) == 0 {
		return &model.InvalidInputError{Field: "groups", Reason: "at least one group is required"}
	}
	if len(e.apps) == 0 {
		return &model.InvalidInputError{Field: "apps", Reason: "at least one app is required"}
	}
	if !e.intent.Valid() {
		return &model.InvalidInputError{Field: "intent", Reason: fmt.Sprintf("unknown intent %q", e.intent)}
	}

	if e.filter != nil {
		if e.filter.ID == "" {
			return &model.InvalidInputError{Field: "filter.id", Reason: "filter must have an id"}
		}
		if e.filter.Mode != "" && e.filter.Mode != model.FilterInclude && e.filter.Mode != model.FilterExclude {
			return &model.InvalidInputError{Field: "filter.mode", Reason: fmt.Sprintf("unknown filter mode %q", e.filter.Mode)}
		}
		if e.intent == model.IntentUninstall {
			return &model.InvalidInputError{Field: "filter", Reason: "filters are not valid on uninstall intents"}
		}
	}

	seenGroups := make(map[string]bool, len(e.groups))
	for _, group := range e.groups {
		if group.ID == "" {
			return &model.InvalidInputError{Field: "groups", Reason: "group must have an id"}
		}
		if seenGroups[group.ID] {
			return &model.InvalidInputError{Field: "groups", Reason: fmt.Sprintf("group %s listed more than once", group.ID)}
		}
		seenGroups[group.ID] = true
	}

	seenApps := make(map[string]bool, len(e.apps))
	for _, app := range e.apps {
		if app.ID == "" {
			return &model.InvalidInputError{Field: "apps", Reason: "app must have an id"}
		}
		if seenApps[app.ID] {
			return &model.InvalidInputError{Field: "apps", Reason: fmt.Sprintf("app %s listed more than once", app.ID)}
		}
		seenApps[app.ID] = true
	}

	return nil
}
