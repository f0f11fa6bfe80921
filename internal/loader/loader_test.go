package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/schema"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRequest(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	path := writeFile(t, "request.yaml", `
apiVersion: assignctl.sourceplane.io/v1
kind: BulkAssignment
metadata:
  name: rollout
spec:
  intent: required
  groups:
    - id: g1
  apps:
    - id: app1
      displayName: Company Portal
`)
	request, err := LoadRequest(path, validator)
	require.NoError(t, err)
	assert.Equal(t, "required", request.Spec.Intent)
	assert.Equal(t, []model.Group{{ID: "g1"}}, request.Spec.Groups)
	assert.Equal(t, "Company Portal", request.Spec.Apps[0].DisplayName)
}

func TestLoadRequest_SchemaFailure(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	path := writeFile(t, "request.json", `{"apiVersion": "v1", "kind": "BulkAssignment", "spec": {"intent": "required", "groups": [], "apps": []}}`)
	_, err = LoadRequest(path, validator)
	assert.Error(t, err)
}

func TestLoadPlan(t *testing.T) {
	path := writeFile(t, "plan.json", `{
  "apiVersion": "assignctl.sourceplane.io/v1",
  "kind": "AssignmentPlan",
  "metadata": {"name": "rollout"},
  "scope": ["g1"],
  "apps": ["app1"],
  "operations": [{"appId": "app1", "kind": "add", "target": {"groupId": "g1", "intent": "required"}}]
}`)
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	plan, err := LoadPlan(path, validator)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, model.OpAdd, plan.Operations[0].Kind)
	assert.Equal(t, model.IntentRequired, plan.Operations[0].Target.Intent)
}

func TestLoadPlan_WrongKind(t *testing.T) {
	path := writeFile(t, "plan.yaml", "apiVersion: v1\nkind: BulkAssignment\n")
	_, err := LoadPlan(path, nil)
	assert.Error(t, err)
}
