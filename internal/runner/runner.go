// Package runner applies diff operations against the remote service
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sourceplane/assignctl/internal/metrics"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/planner"
	"github.com/sourceplane/assignctl/internal/remote"
	"github.com/sourceplane/assignctl/internal/retry"
)

// DefaultConcurrency is the number of app batches applied in parallel when unset
const DefaultConcurrency = 2

// Hold keeps every operation of one app from executing and reports it as skipped
type Hold struct {
	Kind   model.ErrorKind
	Detail string
}

// Runner executes an op set against the remote service, one sequential
// batch per app and several apps at a time
type Runner struct {
	client      remote.Client
	concurrency int
	policy      retry.Policy
	logger      *slog.Logger
	metrics     metrics.Recorder
	stdout      io.Writer
	dryRun      bool
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger used for per-operation diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics sets the recorder for operation outcomes and retries
func WithMetrics(recorder metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = recorder }
}

// WithProgress prints one line per finished operation to w
func WithProgress(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

// WithDryRun reports mutating operations as skipped without calling the service
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// NewRunner creates a runner applying at most concurrency app batches at once.
// A non-positive concurrency falls back to DefaultConcurrency
func NewRunner(client remote.Client, concurrency int, policy retry.Policy, opts ...Option) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	r := &Runner{
		client:      client,
		concurrency: concurrency,
		policy:      policy,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     metrics.NewNop(),
		stdout:      io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run is the shared state of one Run call. Each batch goroutine writes only
// the result slots named by its own Indexes
type run struct {
	results []model.OperationResult
	aborted atomic.Bool

	mu      sync.Mutex
	authErr error
	outMu   sync.Mutex
}

// Run executes ops and returns one result per operation in op-set order.
// Operations of apps listed in holds are skipped with the hold's kind.
//
// Ordering is checked before anything is sent. Cancelling ctx stops new app
// batches from starting; batches already running finish. The returned error is
// the context error after a cancellation, or the authentication error that
// aborted the run; the results are complete in both cases
func (r *Runner) Run(ctx context.Context, ops []model.DiffOperation, holds map[string]Hold) ([]model.OperationResult, error) {
	if err := planner.CheckOrdering(ops); err != nil {
		return nil, fmt.Errorf("failed to validate operation order: %w", err)
	}

	state := &run{results: make([]model.OperationResult, len(ops))}
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, batch := range planner.BatchByApp(ops) {
		if hold, held := holds[batch.AppID]; held {
			r.skipBatch(state, batch, 0, hold.Kind, hold.Detail)
			continue
		}
		if !hasChanges(batch) {
			r.skipBatch(state, batch, 0, "", "")
			continue
		}

		g.Go(func() error {
			switch {
			case state.aborted.Load():
				r.skipBatch(state, batch, 0, model.KindAborted, "run aborted after an authentication failure")
			case ctx.Err() != nil:
				r.skipBatch(state, batch, 0, model.KindCanceled, "run canceled before the app was started")
			default:
				r.applyBatch(context.WithoutCancel(ctx), state, batch)
			}
			return nil
		})
	}
	_ = g.Wait()

	canceled := false
	for _, result := range state.results {
		if result.ErrorKind == model.KindCanceled {
			canceled = true
		}
		r.metrics.RecordOperation(result.Operation.Kind, result.Outcome, result.ErrorKind)
	}

	if state.authErr != nil {
		return state.results, fmt.Errorf("apply aborted: %w", state.authErr)
	}
	if canceled {
		return state.results, fmt.Errorf("apply canceled: %w", context.Cause(ctx))
	}
	return state.results, nil
}

// applyBatch runs one app's operations strictly in order
func (r *Runner) applyBatch(ctx context.Context, state *run, batch planner.Batch) {
	r.printf(state, "→ App %s (%d operations)\n", batch.AppID, len(batch.Operations))

	for i, op := range batch.Operations {
		idx := batch.Indexes[i]
		if !op.Mutates() {
			state.results[idx] = unchanged(op)
			continue
		}
		if state.aborted.Load() {
			r.skipBatch(state, batch, i, model.KindAborted, "run aborted after an authentication failure")
			return
		}
		if r.dryRun {
			state.results[idx] = model.OperationResult{Operation: op, Outcome: model.OutcomeSkipped, Detail: "dry run"}
			r.printf(state, "  - %s %s → %s\n", op.Kind, op.Target.GroupID, op.Target.Describe())
			continue
		}

		result, err := r.applyOne(ctx, op)
		state.results[idx] = result
		if result.Outcome == model.OutcomeSuccess {
			r.printf(state, "  ✓ %s %s → %s\n", op.Kind, op.Target.GroupID, op.Target.Describe())
			continue
		}
		r.printf(state, "  ✗ %s %s → %s: %s\n", op.Kind, op.Target.GroupID, op.Target.Describe(), result.Detail)

		if remote.IsAuth(err) {
			state.aborted.Store(true)
			state.mu.Lock()
			if state.authErr == nil {
				state.authErr = err
			}
			state.mu.Unlock()
		}
	}
}

// applyOne sends a single mutation under the retry policy
func (r *Runner) applyOne(ctx context.Context, op model.DiffOperation) (model.OperationResult, error) {
	retries, err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.MutateAssignment(ctx, op.AppID, op)
	}, func(attempt int, err error) {
		r.metrics.RecordRetry("apply", remote.KindOf(err))
		r.logger.Debug("retrying assignment mutation", "app", op.AppID, "kind", op.Kind,
			"group", op.Target.GroupID, "attempt", attempt, "error", err)
	})

	if err != nil {
		kind := remote.KindOf(err)
		r.logger.Warn("assignment mutation failed", "app", op.AppID, "kind", op.Kind,
			"group", op.Target.GroupID, "error_kind", kind, "retries", retries, "error", err)
		return model.OperationResult{Operation: op, Outcome: model.OutcomeFailed, ErrorKind: kind, Detail: err.Error(), RetriesUsed: retries}, err
	}

	r.logger.Info("applied assignment", "app", op.AppID, "kind", op.Kind, "group", op.Target.GroupID, "retries", retries)
	return model.OperationResult{Operation: op, Outcome: model.OutcomeSuccess, RetriesUsed: retries}, nil
}

// skipBatch marks the operations of batch from position from onwards as
// skipped. Noop operations are always reported as unchanged
func (r *Runner) skipBatch(state *run, batch planner.Batch, from int, kind model.ErrorKind, detail string) {
	for i := from; i < len(batch.Operations); i++ {
		op := batch.Operations[i]
		if !op.Mutates() {
			state.results[batch.Indexes[i]] = unchanged(op)
			continue
		}
		state.results[batch.Indexes[i]] = model.OperationResult{Operation: op, Outcome: model.OutcomeSkipped, ErrorKind: kind, Detail: detail}
	}
}

func (r *Runner) printf(state *run, format string, args ...any) {
	state.outMu.Lock()
	defer state.outMu.Unlock()
	fmt.Fprintf(r.stdout, format, args...)
}

func unchanged(op model.DiffOperation) model.OperationResult {
	return model.OperationResult{Operation: op, Outcome: model.OutcomeSkipped, Detail: "unchanged"}
}

func hasChanges(batch planner.Batch) bool {
	for _, op := range batch.Operations {
		if op.Mutates() {
			return true
		}
	}
	return false
}
