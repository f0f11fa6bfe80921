package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRequest = `
apiVersion: assignctl.sourceplane.io/v1
kind: BulkAssignment
metadata:
  name: office-rollout
spec:
  intent: required
  groups:
    - id: g1
      displayName: Finance
  apps:
    - id: app1
  filter:
    id: f1
    mode: exclude
`

func TestValidateRequest(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	require.NoError(t, v.ValidateRequest([]byte(validRequest)))

	err = v.ValidateRequest([]byte(`
apiVersion: assignctl.sourceplane.io/v1
kind: BulkAssignment
spec:
  intent: required
  groups: []
  apps:
    - id: app1
`))
	assert.Error(t, err, "empty group list")

	err = v.ValidateRequest([]byte(`{"apiVersion": "v1", "kind": "Other", "spec": {}}`))
	assert.Error(t, err)
}

func TestValidateSnapshot(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	require.NoError(t, v.ValidateSnapshot([]byte(`{
  "apiVersion": "assignctl.sourceplane.io/v1",
  "kind": "AssignmentSnapshot",
  "id": "s1",
  "takenAt": "2026-01-02T03:04:05Z",
  "states": [{"appId": "app1", "targets": [{"groupId": "g1", "intent": "available", "filterId": "f1", "filterMode": "include"}]}]
}`)))

	err = v.ValidateSnapshot([]byte(`{
  "apiVersion": "assignctl.sourceplane.io/v1",
  "kind": "AssignmentSnapshot",
  "takenAt": "2026-01-02T03:04:05Z",
  "states": [{"appId": "app1", "targets": [{"groupId": "g1", "intent": "sometimes"}]}]
}`))
	assert.Error(t, err)
}

func TestDecode_RejectsMalformedInput(t *testing.T) {
	_, err := Decode([]byte("spec: [unterminated"))
	assert.Error(t, err)
}
