package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
)

func TestBatchByApp(t *testing.T) {
	ops := []model.DiffOperation{
		{AppID: "B", Kind: model.OpAdd, Target: target("G1", model.IntentRequired)},
		{AppID: "A", Kind: model.OpAdd, Target: target("G1", model.IntentRequired)},
		{AppID: "B", Kind: model.OpAdd, Target: target("G2", model.IntentRequired)},
	}

	batches := BatchByApp(ops)
	require.Len(t, batches, 2)
	assert.Equal(t, "B", batches[0].AppID)
	assert.Equal(t, []int{0, 2}, batches[0].Indexes)
	assert.Equal(t, "G2", batches[0].Operations[1].Target.GroupID)
	assert.Equal(t, "A", batches[1].AppID)
	assert.Equal(t, []int{1}, batches[1].Indexes)
}

func TestCheckOrdering(t *testing.T) {
	prev := &model.AssignmentTarget{GroupID: "G1", Intent: model.IntentRequired, AssignmentID: "a1"}

	ok := []model.DiffOperation{
		{AppID: "A", Kind: model.OpUpdate, Target: target("G1", model.IntentAvailable), PreviousTarget: prev},
		{AppID: "A", Kind: model.OpNoop, Target: target("G9", model.IntentAvailable)},
		{AppID: "A", Kind: model.OpAdd, Target: target("G2", model.IntentAvailable)},
	}
	require.NoError(t, CheckOrdering(ok))

	addFirst := []model.DiffOperation{ok[2], ok[0]}
	assert.ErrorIs(t, CheckOrdering(addFirst), model.ErrInvalidInput)

	missingID := []model.DiffOperation{{AppID: "A", Kind: model.OpRemove, Target: target("G1", model.IntentRequired)}}
	assert.ErrorIs(t, CheckOrdering(missingID), model.ErrInvalidInput)

	twice := []model.DiffOperation{
		{AppID: "A", Kind: model.OpAdd, Target: target("G1", model.IntentAvailable)},
		{AppID: "A", Kind: model.OpAdd, Target: target("G1", model.IntentRequired)},
	}
	assert.ErrorIs(t, CheckOrdering(twice), model.ErrScopeConflict)

	unknown := []model.DiffOperation{{AppID: "A", Kind: "replace"}}
	assert.ErrorIs(t, CheckOrdering(unknown), model.ErrInvalidInput)
}
