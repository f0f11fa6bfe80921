package normalize

import (
	"fmt"
	"strings"

	"github.com/sourceplane/assignctl/internal/model"
)

// NormalizeRequest transforms a raw BulkAssignment into canonical form:
// ids are trimmed, repeated groups and apps are dropped (first occurrence
// wins), the intent is parsed and the filter mode defaults to include
func NormalizeRequest(request *model.BulkAssignment) (*model.NormalizedAssignment, error) {
	if request == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	intent, err := model.ParseIntent(request.Spec.Intent)
	if err != nil {
		return nil, err
	}

	normalized := &model.NormalizedAssignment{
		Metadata: request.Metadata,
		Intent:   intent,
		Groups:   make([]model.Group, 0, len(request.Spec.Groups)),
		Apps:     make([]model.App, 0, len(request.Spec.Apps)),
	}

	seenGroups := make(map[string]bool)
	for _, group := range request.Spec.Groups {
		group.ID = strings.TrimSpace(group.ID)
		if group.ID == "" {
			return nil, &model.InvalidInputError{Field: "spec.groups", Reason: "group must have an id"}
		}
		if seenGroups[group.ID] {
			continue
		}
		seenGroups[group.ID] = true
		normalized.Groups = append(normalized.Groups, group)
	}

	seenApps := make(map[string]bool)
	for _, app := range request.Spec.Apps {
		app.ID = strings.TrimSpace(app.ID)
		if app.ID == "" {
			return nil, &model.InvalidInputError{Field: "spec.apps", Reason: "app must have an id"}
		}
		if seenApps[app.ID] {
			continue
		}
		seenApps[app.ID] = true
		normalized.Apps = append(normalized.Apps, app)
	}

	if request.Spec.Filter != nil {
		mode, err := model.ParseFilterMode(string(request.Spec.Filter.Mode))
		if err != nil {
			return nil, err
		}
		normalized.Filter = &model.FilterRef{
			ID:   strings.TrimSpace(request.Spec.Filter.ID),
			Mode: mode,
		}
	}

	return normalized, nil
}
