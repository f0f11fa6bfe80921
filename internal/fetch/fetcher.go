// Package fetch reads the current assignment state of many apps concurrently
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sourceplane/assignctl/internal/metrics"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/remote"
	"github.com/sourceplane/assignctl/internal/retry"
)

// DefaultConcurrency is the number of apps fetched in parallel when unset
const DefaultConcurrency = 5

// Fetcher retrieves current assignment state per app with bounded concurrency
type Fetcher struct {
	client      remote.Client
	concurrency int
	policy      retry.Policy
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLogger sets the logger used for per-app diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithMetrics sets the metrics recorder
func WithMetrics(recorder metrics.Recorder) Option {
	return func(f *Fetcher) { f.metrics = recorder }
}

// New creates a fetcher. A non-positive concurrency falls back to DefaultConcurrency
func New(client remote.Client, concurrency int, policy retry.Policy, opts ...Option) *Fetcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	f := &Fetcher{
		client:      client,
		concurrency: concurrency,
		policy:      policy,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result holds the apps that were read and the apps that could not be
type Result struct {
	States   map[string]model.AppAssignmentState
	Failures []model.FetchFailure
}

// Fetch reads every app in appIDs. Per-app failures are collected in the
// result; an authentication failure or a canceled ctx aborts the whole call
func (f *Fetcher) Fetch(ctx context.Context, appIDs []string) (*Result, error) {
	ids := dedupe(appIDs)
	states := make([]*model.AppAssignmentState, len(ids))
	failures := make([]*model.FetchFailure, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, appID := range ids {
		g.Go(func() error {
			state, failure, err := f.fetchOne(gctx, appID)
			if err != nil {
				return err
			}
			states[i] = state
			failures[i] = failure
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}

	result := &Result{States: make(map[string]model.AppAssignmentState, len(ids))}
	for i := range ids {
		if states[i] != nil {
			result.States[ids[i]] = *states[i]
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, *failures[i])
		}
	}
	return result, nil
}

// fetchOne reads one app under the retry policy. Every attempt is a full read;
// only the successful one is kept
func (f *Fetcher) fetchOne(ctx context.Context, appID string) (*model.AppAssignmentState, *model.FetchFailure, error) {
	var state model.AppAssignmentState
	retries, err := f.policy.Do(ctx, func(ctx context.Context) error {
		got, err := f.client.FetchAssignments(ctx, appID)
		if err != nil {
			return err
		}
		state = got
		return nil
	}, func(attempt int, err error) {
		f.metrics.RecordRetry("fetch", remote.KindOf(err))
		f.logger.Debug("retrying assignment fetch", "app", appID, "attempt", attempt, "error", err)
	})

	if err != nil {
		kind := remote.KindOf(err)
		f.metrics.RecordFetch(string(kind))
		if remote.IsAuth(err) || ctx.Err() != nil {
			return nil, nil, err
		}
		f.logger.Warn("assignment fetch failed", "app", appID, "kind", kind, "retries", retries, "error", err)
		return nil, &model.FetchFailure{AppID: appID, Kind: kind, Message: err.Error(), Retries: retries}, nil
	}

	if state.AppID == "" {
		state.AppID = appID
	}
	if err := state.Validate(); err != nil {
		f.metrics.RecordFetch(string(model.KindValidation))
		f.logger.Warn("assignment list violates one target per group", "app", appID, "error", err)
		return nil, &model.FetchFailure{AppID: appID, Kind: model.KindValidation, Message: err.Error(), Retries: retries}, nil
	}

	f.metrics.RecordFetch("success")
	f.logger.Debug("fetched assignments", "app", appID, "targets", len(state.Targets), "retries", retries)
	return &state, nil, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
