// Package engine is the caller-facing API of the reconciliation engine. An
// Engine owns no global state: the remote client, the concurrency ceilings and
// the retry policy are passed in at construction
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sourceplane/assignctl/internal/config"
	"github.com/sourceplane/assignctl/internal/expand"
	"github.com/sourceplane/assignctl/internal/fetch"
	"github.com/sourceplane/assignctl/internal/metrics"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/planner"
	"github.com/sourceplane/assignctl/internal/remote"
	"github.com/sourceplane/assignctl/internal/runner"
	"github.com/sourceplane/assignctl/internal/snapshot"
)

// SnapshotSaver persists a pre-apply snapshot and returns a reference to it
type SnapshotSaver interface {
	Save(snap *model.Snapshot) (string, error)
}

// RunRecorder keeps a history of finished runs
type RunRecorder interface {
	Record(ctx context.Context, report *model.RunReport) error
}

// Engine plans and applies group-first bulk assignments
type Engine struct {
	client   remote.Client
	cfg      config.Engine
	logger   *slog.Logger
	metrics  metrics.Recorder
	saver    SnapshotSaver
	recorder RunRecorder
	now      func() time.Time
	progress io.Writer
	dryRun   bool

	fetcher   *fetch.Fetcher
	snapshots *snapshot.Manager
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the structured logger passed down to the fetcher and runner
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics recorder passed down to the fetcher and runner
func WithMetrics(recorder metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = recorder }
}

// WithSnapshotSaver stores the snapshot taken before every apply
func WithSnapshotSaver(saver SnapshotSaver) Option {
	return func(e *Engine) { e.saver = saver }
}

// WithRunRecorder records every apply and restore report
func WithRunRecorder(recorder RunRecorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

// WithClock replaces time.Now for snapshot and report timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProgress prints per-operation progress lines to w during apply
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.progress = w }
}

// WithDryRun plans and reports without mutating remote state or taking snapshots
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// New creates an engine. cfg is validated here so a misconfigured engine
// never reaches the remote service
func New(client remote.Client, cfg config.Engine, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, &model.InvalidInputError{Field: "client", Reason: "remote client cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		client:   client,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:  metrics.NewNop(),
		now:      time.Now,
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.fetcher = fetch.New(client, cfg.FetchConcurrency, cfg.Retry,
		fetch.WithLogger(e.logger), fetch.WithMetrics(e.metrics))
	e.snapshots = snapshot.NewManager(e.fetcher, e.now)
	return e, nil
}

// PlanBulkAssignment builds the desired matrix of every group × app pair
// under one intent. It makes no remote calls
func (e *Engine) PlanBulkAssignment(groups []model.Group, apps []model.App, intent model.Intent, filter *model.FilterRef) (model.DesiredMatrix, error) {
	return expand.NewExpander(groups, apps, intent, filter).Expand()
}

// DiffAgainstRemote fetches the current state of the matrix's apps and diffs
// it against the matrix, fenced to the matrix's groups. Apps that could not be
// read are listed as fetch failures and produce no operations
func (e *Engine) DiffAgainstRemote(ctx context.Context, matrix model.DesiredMatrix) (*model.DiffSet, error) {
	return e.diff(ctx, model.Metadata{}, matrix)
}

// DiffRequest is DiffAgainstRemote for a normalized request document, keeping
// its metadata on the plan
func (e *Engine) DiffRequest(ctx context.Context, normalized *model.NormalizedAssignment) (*model.DiffSet, error) {
	matrix, err := expand.FromNormalized(normalized).Expand()
	if err != nil {
		return nil, err
	}
	return e.diff(ctx, normalized.Metadata, matrix)
}

func (e *Engine) diff(ctx context.Context, meta model.Metadata, matrix model.DesiredMatrix) (*model.DiffSet, error) {
	scope := matrix.Scope()
	differ := planner.NewDiffer(scope)

	// Scope conflicts are checked before anything is fetched.
	if _, err := differ.Diff(matrix.States, nil); err != nil {
		return nil, err
	}

	appIDs := matrix.AppIDs()
	current, err := e.fetcher.Fetch(ctx, appIDs)
	if err != nil {
		return nil, err
	}

	ops, err := differ.Diff(matrix.States, current.States)
	if err != nil {
		return nil, err
	}

	e.logger.Info("diff computed", "apps", len(appIDs), "groups", len(scope),
		"summary", planner.Summary(ops), "fetch_failures", len(current.Failures))
	return planner.NewDiffSet(meta, scope, appIDs, ops, current.Failures), nil
}

// ApplyDiff executes a plan. A snapshot of every app with changes is captured
// first and saved when a saver is configured; operations of apps that could
// not be captured are skipped with kind no_snapshot.
//
// The report is returned whenever execution started, also together with a
// non-nil error after an authentication abort or a cancellation
func (e *Engine) ApplyDiff(ctx context.Context, diff *model.DiffSet) (*model.RunReport, error) {
	if diff == nil {
		return nil, &model.InvalidInputError{Field: "diff", Reason: "plan cannot be nil"}
	}
	if err := planner.CheckOrdering(diff.Operations); err != nil {
		return nil, err
	}

	started := e.now()
	ref, holds, err := e.captureBefore(ctx, "pre-apply", diff.ChangedApps())
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, model.RunApply, started, ref, diff.Operations, holds)
}

// captureBefore snapshots the apps about to change and saves the snapshot when
// a saver is configured. Apps that could not be captured come back as holds.
//
// A canceled ctx is not an error here: the runner reports every batch as
// canceled and returns the cancellation together with the report
func (e *Engine) captureBefore(ctx context.Context, label string, changed []string) (string, map[string]runner.Hold, error) {
	holds := map[string]runner.Hold{}
	if len(changed) == 0 || e.dryRun {
		return "", holds, nil
	}

	snap, failures, err := e.snapshots.Capture(ctx, changed)
	if err != nil {
		if ctx.Err() != nil {
			e.logger.Warn(label+" snapshot interrupted", "error", err)
			return "", holds, nil
		}
		return "", nil, fmt.Errorf("failed to capture %s snapshot: %w", label, err)
	}
	for _, failure := range failures {
		holds[failure.AppID] = runner.Hold{
			Kind:   model.KindNoSnapshot,
			Detail: fmt.Sprintf("%s snapshot failed (%s): %s", label, failure.Kind, failure.Message),
		}
	}

	ref := snap.ID
	if e.saver != nil {
		path, err := e.saver.Save(snap)
		if err != nil {
			return "", nil, fmt.Errorf("failed to save %s snapshot: %w", label, err)
		}
		ref = path
	}
	e.logger.Info(label+" snapshot captured", "snapshot", ref, "apps", len(snap.States), "failures", len(failures))
	return ref, holds, nil
}

// Backup captures the current state of apps
func (e *Engine) Backup(ctx context.Context, appIDs []string) (*model.Snapshot, []model.FetchFailure, error) {
	if len(appIDs) == 0 {
		return nil, nil, &model.InvalidInputError{Field: "apps", Reason: "at least one app is required"}
	}
	return e.snapshots.Capture(ctx, appIDs)
}

// PlanRestore diffs a snapshot against live state without applying it
func (e *Engine) PlanRestore(ctx context.Context, snap *model.Snapshot) (*model.DiffSet, error) {
	return e.snapshots.PlanRestore(ctx, snap)
}

// Restore brings every app of the snapshot back to its recorded state, within
// the groups the snapshot mentions. The apps it changes are snapshotted first,
// like an apply, and the report references that new snapshot
func (e *Engine) Restore(ctx context.Context, snap *model.Snapshot) (*model.RunReport, error) {
	started := e.now()
	plan, err := e.snapshots.PlanRestore(ctx, snap)
	if err != nil {
		return nil, err
	}
	for _, failure := range plan.FetchFailures {
		e.logger.Warn("app not restored, live state unreadable", "app", failure.AppID, "error_kind", failure.Kind)
	}

	ref, holds, err := e.captureBefore(ctx, "pre-restore", plan.ChangedApps())
	if err != nil {
		return nil, err
	}
	e.logger.Info("restoring snapshot", "snapshot", snap.ID, "taken_at", snap.TakenAt, "pre_restore", ref)
	return e.execute(ctx, model.RunRestore, started, ref, plan.Operations, holds)
}

func (e *Engine) execute(ctx context.Context, kind model.RunKind, started time.Time, ref string, ops []model.DiffOperation, holds map[string]runner.Hold) (*model.RunReport, error) {
	exec := runner.NewRunner(e.client, e.cfg.ApplyConcurrency, e.cfg.Retry,
		runner.WithLogger(e.logger),
		runner.WithMetrics(e.metrics),
		runner.WithProgress(e.progress),
		runner.WithDryRun(e.dryRun),
	)

	results, runErr := exec.Run(ctx, ops, holds)
	if results == nil && runErr != nil {
		return nil, runErr
	}

	report := &model.RunReport{
		ID:          uuid.NewString(),
		Kind:        kind,
		StartedAt:   started.UTC(),
		FinishedAt:  e.now().UTC(),
		SnapshotRef: ref,
		Results:     results,
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	succeeded, failed, skipped := report.Tally()
	e.logger.Info("run finished", "run", report.ID, "kind", kind,
		"succeeded", succeeded, "failed", failed, "skipped", skipped)
	e.metrics.ObserveRun(kind, report.FinishedAt.Sub(report.StartedAt).Seconds())

	if e.recorder != nil && !e.dryRun {
		// The caller's context may already be canceled; the run still happened.
		if err := e.recorder.Record(context.WithoutCancel(ctx), report); err != nil {
			e.logger.Warn("failed to record run history", "run", report.ID, "error", err)
		}
	}
	return report, runErr
}
