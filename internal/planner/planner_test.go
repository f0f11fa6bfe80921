package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
)

func target(group string, intent model.Intent) model.AssignmentTarget {
	return model.AssignmentTarget{GroupID: group, Intent: intent}
}

func state(app string, targets ...model.AssignmentTarget) model.AppAssignmentState {
	return model.AppAssignmentState{AppID: app, Targets: targets}
}

func desiredMatrix(intent model.Intent, apps []string, groups []string) []model.AppAssignmentState {
	out := make([]model.AppAssignmentState, 0, len(apps))
	for _, app := range apps {
		s := model.AppAssignmentState{AppID: app}
		for _, g := range groups {
			s.Targets = append(s.Targets, target(g, intent))
		}
		out = append(out, s)
	}
	return out
}

type pair struct {
	App   string
	Group string
	Kind  model.OperationKind
}

func pairs(ops []model.DiffOperation) []pair {
	out := make([]pair, 0, len(ops))
	for _, op := range ops {
		out = append(out, pair{op.AppID, op.Target.GroupID, op.Kind})
	}
	return out
}

func TestDiff_EmptyCurrentAddsEveryPairInOrder(t *testing.T) {
	desired := desiredMatrix(model.IntentRequired, []string{"App1", "App2"}, []string{"G1", "G2"})
	current := map[string]model.AppAssignmentState{
		"App1": state("App1"),
		"App2": state("App2"),
	}

	ops, err := NewDiffer([]string{"G1", "G2"}).Diff(desired, current)
	require.NoError(t, err)
	assert.Equal(t, []pair{
		{"App1", "G1", model.OpAdd},
		{"App1", "G2", model.OpAdd},
		{"App2", "G1", model.OpAdd},
		{"App2", "G2", model.OpAdd},
	}, pairs(ops))
}

func TestDiff_UpdateBeforeAddAndFencedGroupUntouched(t *testing.T) {
	g1 := target("G1", model.IntentRequired)
	g1.AssignmentID = "asg-g1"
	g3 := target("G3", model.IntentAvailable)
	g3.AssignmentID = "asg-g3"

	desired := desiredMatrix(model.IntentAvailable, []string{"App1"}, []string{"G1", "G2"})
	current := map[string]model.AppAssignmentState{"App1": state("App1", g1, g3)}

	ops, err := NewDiffer([]string{"G1", "G2"}).Diff(desired, current)
	require.NoError(t, err)

	assert.Equal(t, []pair{
		{"App1", "G1", model.OpUpdate},
		{"App1", "G3", model.OpNoop},
		{"App1", "G2", model.OpAdd},
	}, pairs(ops))

	update := ops[0]
	assert.Equal(t, model.IntentAvailable, update.Target.Intent)
	assert.Equal(t, "asg-g1", update.Target.AssignmentID)
	require.NotNil(t, update.PreviousTarget)
	assert.Equal(t, model.IntentRequired, update.PreviousTarget.Intent)

	assert.True(t, ops[1].Fenced)
	assert.Equal(t, model.IntentAvailable, ops[1].Target.Intent)
}

func TestDiff_ScopeFencingNeverRemovesOutOfScopeGroups(t *testing.T) {
	current := map[string]model.AppAssignmentState{
		"App1": state("App1",
			model.AssignmentTarget{GroupID: "Other", Intent: model.IntentRequired, AssignmentID: "x"},
			model.AssignmentTarget{GroupID: "G1", Intent: model.IntentUninstall, AssignmentID: "y"},
		),
	}

	for _, intent := range []model.Intent{model.IntentRequired, model.IntentAvailable, model.IntentUninstall, model.IntentAvailableWithoutEnrollment} {
		ops, err := NewDiffer([]string{"G1", "G2"}).Diff(desiredMatrix(intent, []string{"App1"}, []string{"G1", "G2"}), current)
		require.NoError(t, err)
		for _, op := range ops {
			if op.Target.GroupID == "Other" {
				assert.Equal(t, model.OpNoop, op.Kind, "intent %s", intent)
				assert.True(t, op.Fenced)
			}
		}
	}

	// Even an empty desired list for the app never reaches outside the scope.
	ops, err := NewDiffer([]string{"G1"}).Diff([]model.AppAssignmentState{state("App1")}, current)
	require.NoError(t, err)
	assert.Equal(t, []pair{
		{"App1", "Other", model.OpNoop},
		{"App1", "G1", model.OpRemove},
	}, pairs(ops))
}

func TestDiff_RemovesInScopeGroupsMissingFromDesired(t *testing.T) {
	current := map[string]model.AppAssignmentState{
		"App1": state("App1", model.AssignmentTarget{GroupID: "G2", Intent: model.IntentRequired, AssignmentID: "a2"}),
	}
	desired := []model.AppAssignmentState{state("App1", target("G1", model.IntentRequired))}

	ops, err := NewDiffer([]string{"G1", "G2"}).Diff(desired, current)
	require.NoError(t, err)
	assert.Equal(t, []pair{
		{"App1", "G2", model.OpRemove},
		{"App1", "G1", model.OpAdd},
	}, pairs(ops))
	require.NotNil(t, ops[0].PreviousTarget)
	assert.Equal(t, "a2", ops[0].PreviousTarget.AssignmentID)
}

func TestDiff_FilterChangeIsAnUpdate(t *testing.T) {
	current := map[string]model.AppAssignmentState{
		"App1": state("App1", model.AssignmentTarget{GroupID: "G1", Intent: model.IntentRequired, AssignmentID: "a1"}),
	}
	desired := []model.AppAssignmentState{state("App1",
		model.AssignmentTarget{GroupID: "G1", Intent: model.IntentRequired, FilterID: "f1", FilterMode: model.FilterExclude})}

	ops, err := NewDiffer([]string{"G1"}).Diff(desired, current)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.OpUpdate, ops[0].Kind)
}

func TestDiff_SkipsAppsWithoutCurrentState(t *testing.T) {
	desired := desiredMatrix(model.IntentRequired, []string{"App1", "App2"}, []string{"G1"})
	ops, err := NewDiffer([]string{"G1"}).Diff(desired, map[string]model.AppAssignmentState{"App2": state("App2")})
	require.NoError(t, err)
	assert.Equal(t, []pair{{"App2", "G1", model.OpAdd}}, pairs(ops))
}

func TestDiff_IdempotentAfterApply(t *testing.T) {
	desired := desiredMatrix(model.IntentAvailable, []string{"App1"}, []string{"G1", "G2"})
	current := map[string]model.AppAssignmentState{
		"App1": state("App1",
			model.AssignmentTarget{GroupID: "G1", Intent: model.IntentAvailable, AssignmentID: "1"},
			model.AssignmentTarget{GroupID: "G2", Intent: model.IntentAvailable, AssignmentID: "2"},
			model.AssignmentTarget{GroupID: "G9", Intent: model.IntentRequired, AssignmentID: "9"},
		),
	}
	ops, err := NewDiffer([]string{"G1", "G2"}).Diff(desired, current)
	require.NoError(t, err)
	for _, op := range ops {
		assert.Equal(t, model.OpNoop, op.Kind)
	}
	assert.Equal(t, "add=0 update=0 remove=0 noop=3", Summary(ops))
}

func TestDiff_ScopeConflicts(t *testing.T) {
	current := map[string]model.AppAssignmentState{"App1": state("App1")}
	differ := NewDiffer([]string{"G1"})

	_, err := differ.Diff([]model.AppAssignmentState{
		state("App1", target("G1", model.IntentRequired)),
		state("App1", target("G1", model.IntentAvailable)),
	}, current)
	assert.ErrorIs(t, err, model.ErrScopeConflict)

	_, err = differ.Diff([]model.AppAssignmentState{
		state("App1", target("G1", model.IntentRequired), target("G1", model.IntentUninstall)),
	}, current)
	assert.ErrorIs(t, err, model.ErrScopeConflict)

	_, err = differ.Diff([]model.AppAssignmentState{state("App1", target("G2", model.IntentRequired))}, current)
	assert.ErrorIs(t, err, model.ErrScopeConflict)

	// Identical duplicates collapse into one add.
	ops, err := differ.Diff([]model.AppAssignmentState{
		state("App1", target("G1", model.IntentRequired)),
		state("App1", target("G1", model.IntentRequired)),
	}, current)
	require.NoError(t, err)
	assert.Len(t, ops, 1)

	_, err = differ.Diff([]model.AppAssignmentState{state("")}, current)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
