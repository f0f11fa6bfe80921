package fetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/remote"
	"github.com/sourceplane/assignctl/internal/remote/remotetest"
	"github.com/sourceplane/assignctl/internal/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func throttled(appID string) error {
	return remote.NewError(model.KindThrottled, "fetch", appID, nil)
}

func TestFetch_ReadsEveryApp(t *testing.T) {
	svc := remotetest.NewService()
	svc.AddApp(model.App{ID: "a1"}, model.AssignmentTarget{GroupID: "g1", Intent: model.IntentRequired})
	svc.AddApp(model.App{ID: "a2"})

	result, err := New(svc, 2, testPolicy()).Fetch(context.Background(), []string{"a1", "a2", "a1"})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	require.Len(t, result.States, 2)
	assert.Equal(t, []string{"g1"}, result.States["a1"].GroupIDs())
	assert.NotEmpty(t, result.States["a1"].Targets[0].AssignmentID)
	assert.Empty(t, result.States["a2"].Targets)
}

func TestFetch_BoundedConcurrency(t *testing.T) {
	svc := remotetest.NewService()
	svc.Delay = 5 * time.Millisecond
	var ids []string
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("app-%02d", i)
		svc.AddApp(model.App{ID: id})
		ids = append(ids, id)
	}

	result, err := New(svc, 3, testPolicy()).Fetch(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, result.States, 20)
	assert.LessOrEqual(t, svc.MaxInFlight(), 3)
}

func TestFetch_RetriesThrottlingThenSucceeds(t *testing.T) {
	svc := remotetest.NewService()
	svc.AddApp(model.App{ID: "a1"}, model.AssignmentTarget{GroupID: "g1", Intent: model.IntentAvailable})
	svc.FailFetch("a1", throttled("a1"), throttled("a1"))

	result, err := New(svc, 1, testPolicy()).Fetch(context.Background(), []string{"a1"})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{"g1"}, result.States["a1"].GroupIDs())
}

func TestFetch_ExhaustedRetriesIsolatedToOneApp(t *testing.T) {
	svc := remotetest.NewService()
	svc.AddApp(model.App{ID: "a1"})
	svc.AddApp(model.App{ID: "a2"})
	svc.FailFetch("a1", throttled("a1"), throttled("a1"), throttled("a1"), throttled("a1"))

	result, err := New(svc, 2, testPolicy()).Fetch(context.Background(), []string{"a1", "a2"})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "a1", result.Failures[0].AppID)
	assert.Equal(t, model.KindThrottled, result.Failures[0].Kind)
	assert.Equal(t, 2, result.Failures[0].Retries)
	assert.Contains(t, result.States, "a2")
	assert.NotContains(t, result.States, "a1")
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	svc := remotetest.NewService()
	result, err := New(svc, 1, testPolicy()).Fetch(context.Background(), []string{"missing"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, model.KindNotFound, result.Failures[0].Kind)
	assert.Equal(t, 0, result.Failures[0].Retries)
	assert.Len(t, svc.Calls(), 1)
}

func TestFetch_AuthAbortsTheCall(t *testing.T) {
	svc := remotetest.NewService()
	svc.AddApp(model.App{ID: "a1"})
	svc.FailFetch("a1", remote.NewError(model.KindAuth, "fetch", "a1", nil))

	_, err := New(svc, 1, testPolicy()).Fetch(context.Background(), []string{"a1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrAuth)
}

func TestFetch_CanceledContextAbortsTheCall(t *testing.T) {
	svc := remotetest.NewService()
	svc.AddApp(model.App{ID: "a1"})
	svc.AddApp(model.App{ID: "a2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(svc, 2, testPolicy()).Fetch(ctx, []string{"a1", "a2"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

type duplicatingClient struct{ remote.Client }

func (duplicatingClient) FetchAssignments(_ context.Context, appID string) (model.AppAssignmentState, error) {
	return model.AppAssignmentState{AppID: appID, Targets: []model.AssignmentTarget{
		{GroupID: "g1", Intent: model.IntentRequired},
		{GroupID: "g1", Intent: model.IntentAvailable},
	}}, nil
}

func TestFetch_RejectsInconsistentState(t *testing.T) {
	result, err := New(duplicatingClient{}, 1, testPolicy()).Fetch(context.Background(), []string{"a1"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, model.KindValidation, result.Failures[0].Kind)
}
