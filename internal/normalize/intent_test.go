package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
)

func TestNormalizeRequest(t *testing.T) {
	request := &model.BulkAssignment{
		Metadata: model.Metadata{Name: "rollout"},
		Spec: model.BulkAssignmentSpec{
			Intent: "Available",
			Groups: []model.Group{{ID: " g1 "}, {ID: "g2"}, {ID: "g1", DisplayName: "dup"}},
			Apps:   []model.App{{ID: "app1"}, {ID: "app1"}},
			Filter: &model.FilterRef{ID: "f1"},
		},
	}

	normalized, err := NormalizeRequest(request)
	require.NoError(t, err)
	assert.Equal(t, model.IntentAvailable, normalized.Intent)
	assert.Equal(t, []model.Group{{ID: "g1"}, {ID: "g2"}}, normalized.Groups)
	assert.Equal(t, []model.App{{ID: "app1"}}, normalized.Apps)
	require.NotNil(t, normalized.Filter)
	assert.Equal(t, model.FilterInclude, normalized.Filter.Mode)
	assert.Equal(t, "rollout", normalized.Metadata.Name)
}

func TestNormalizeRequest_Errors(t *testing.T) {
	_, err := NormalizeRequest(nil)
	assert.Error(t, err)

	_, err = NormalizeRequest(&model.BulkAssignment{Spec: model.BulkAssignmentSpec{Intent: "mandatory"}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = NormalizeRequest(&model.BulkAssignment{Spec: model.BulkAssignmentSpec{
		Intent: "required",
		Groups: []model.Group{{ID: "  "}},
	}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = NormalizeRequest(&model.BulkAssignment{Spec: model.BulkAssignmentSpec{
		Intent: "required",
		Filter: &model.FilterRef{ID: "f1", Mode: "sideways"},
	}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
