package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
)

func TestPrometheus_CountsOperations(t *testing.T) {
	p := NewPrometheus("")
	p.RecordOperation(model.OpAdd, model.OutcomeSuccess, "")
	p.RecordOperation(model.OpAdd, model.OutcomeSuccess, "")
	p.RecordOperation(model.OpRemove, model.OutcomeFailed, model.KindPermission)
	p.RecordRetry("apply", model.KindThrottled)
	p.RecordFetch("success")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.operations.WithLabelValues("add", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues("remove", "failed", "permission")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.retries.WithLabelValues("apply", "throttled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.fetches.WithLabelValues("success")))
}

func TestPrometheus_WriteTextfile(t *testing.T) {
	p := NewPrometheus("assignctl")
	p.ObserveRun(model.RunApply, 1.5)

	path := filepath.Join(t.TempDir(), "assignctl.prom")
	require.NoError(t, p.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "assignctl_run_duration_seconds_count{kind=\"apply\"} 1")
}

func TestNop(t *testing.T) {
	var r Recorder = NewNop()
	r.RecordFetch("success")
	r.RecordOperation(model.OpAdd, model.OutcomeSuccess, "")
}
