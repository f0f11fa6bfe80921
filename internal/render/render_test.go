package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/loader"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/planner"
	"github.com/sourceplane/assignctl/internal/schema"
)

func samplePlan() *model.DiffSet {
	previous := model.AssignmentTarget{GroupID: "G1", Intent: model.IntentRequired, AssignmentID: "asg-1"}
	ops := []model.DiffOperation{
		{AppID: "App1", Kind: model.OpUpdate, PreviousTarget: &previous,
			Target: model.AssignmentTarget{GroupID: "G1", Intent: model.IntentAvailable, AssignmentID: "asg-1"}},
		{AppID: "App1", Kind: model.OpAdd, Target: model.AssignmentTarget{GroupID: "G2", Intent: model.IntentAvailable}},
		{AppID: "App1", Kind: model.OpNoop, Fenced: true, Target: model.AssignmentTarget{GroupID: "G3", Intent: model.IntentAvailable, AssignmentID: "asg-2"}},
	}
	failures := []model.FetchFailure{{AppID: "App2", Kind: model.KindPermission, Message: "forbidden"}}
	return planner.NewDiffSet(model.Metadata{Name: "rollout"}, []string{"G1", "G2"}, []string{"App1", "App2"}, ops, failures)
}

func TestWritePlan_LoadsBack(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	for _, name := range []string{"plan.json", "out/plan.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, NewRenderer().WritePlan(samplePlan(), path))

			loaded, err := loader.LoadPlan(path, validator)
			require.NoError(t, err)
			assert.Equal(t, samplePlan(), loaded)
		})
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := &model.RunReport{ID: "run-1", Kind: model.RunApply, Results: []model.OperationResult{}}
	require.NoError(t, NewRenderer().WriteReport(report, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "run-1"`)
}

func TestViewTree(t *testing.T) {
	out := NewPlanViewer(samplePlan()).ViewTree(false)
	assert.Contains(t, out, "├─ App1 (1 add, 1 noop, 1 update)")
	assert.Contains(t, out, "update G1: required → available")
	assert.Contains(t, out, "└─ add    G2: available")
	assert.NotContains(t, out, "G3")
	assert.Contains(t, out, "└─ App2 ✗ not read (permission): forbidden")
	assert.Contains(t, out, "1 add, 1 update, 0 remove, 1 unchanged, 1 apps not read")

	withNoop := NewPlanViewer(samplePlan()).ViewTree(true)
	assert.Contains(t, withNoop, "noop   G3: available (out of scope)")
}

func TestViewTree_Empty(t *testing.T) {
	plan := planner.NewDiffSet(model.Metadata{}, nil, nil, nil, nil)
	assert.Equal(t, "No operations in plan", NewPlanViewer(plan).ViewTree(false))
}

func TestViewByApp(t *testing.T) {
	viewer := NewPlanViewer(samplePlan())
	assert.Contains(t, viewer.ViewByApp("App1"), "App1 (1 add, 1 noop, 1 update)")
	assert.Equal(t, "No operations found for app: nope", viewer.ViewByApp("nope"))
}

func TestViewReport(t *testing.T) {
	plan := samplePlan()
	report := &model.RunReport{
		ID:          "run-1",
		Kind:        model.RunApply,
		SnapshotRef: "snap.json",
		Results: []model.OperationResult{
			{Operation: plan.Operations[0], Outcome: model.OutcomeSuccess, RetriesUsed: 1},
			{Operation: plan.Operations[1], Outcome: model.OutcomeFailed, ErrorKind: model.KindValidation, Detail: "bad target"},
			{Operation: plan.Operations[2], Outcome: model.OutcomeSkipped, Detail: "unchanged"},
		},
		Error: "",
	}

	out := ViewReport(report)
	assert.Contains(t, out, "Run run-1 (apply)")
	assert.Contains(t, out, "Snapshot: snap.json")
	assert.Contains(t, out, "failed (1)\n└─ App1 add G2 → available [validation]: bad target")
	assert.Contains(t, out, "success (1)\n└─ App1 update G1 → available (retry:1x)")
	assert.NotContains(t, out, "G3")
	assert.Contains(t, out, "Summary: 1 succeeded, 1 failed, 1 skipped")
}
