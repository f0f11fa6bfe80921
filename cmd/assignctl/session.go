package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sourceplane/assignctl/internal/engine"
	"github.com/sourceplane/assignctl/internal/history"
	"github.com/sourceplane/assignctl/internal/loader"
	"github.com/sourceplane/assignctl/internal/logging"
	"github.com/sourceplane/assignctl/internal/metrics"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/normalize"
	"github.com/sourceplane/assignctl/internal/remote/graph"
	"github.com/sourceplane/assignctl/internal/schema"
	"github.com/sourceplane/assignctl/internal/snapshot"
)

// session holds what one command invocation needs. Remote resources are
// opened lazily so offline commands never require a token
type session struct {
	logger    *slog.Logger
	metrics   *metrics.Prometheus
	validator *schema.Validator
	db        *sql.DB
	client    *graph.Client
}

func newSession() (*session, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return &session{
		logger:    logging.New(cfg.SlogLevel(), cfg.LogFormat, os.Stderr),
		metrics:   metrics.NewPrometheus("assignctl"),
		validator: validator,
	}, nil
}

// graphClient connects to Graph with the configured token
func (s *session) graphClient() (*graph.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	client, err := graph.New(graph.Options{
		BaseURL:           cfg.Graph.BaseURL,
		Token:             cfg.Graph.Token,
		RequestsPerSecond: cfg.Graph.RequestsPerSecond,
		Burst:             cfg.Graph.Burst,
		Timeout:           cfg.Graph.Timeout,
		Logger:            s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create graph client (set ASSIGNCTL_GRAPH_TOKEN): %w", err)
	}
	s.client = client
	return client, nil
}

func (s *session) snapshotStore() *snapshot.FileStore {
	return snapshot.NewFileStore(cfg.SnapshotDir, cfg.CompressSnapshots, s.validator)
}

func (s *session) runHistory() (*history.RunRepo, error) {
	if s.db == nil {
		db, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open run history %s: %w", cfg.HistoryDB, err)
		}
		s.db = db
	}
	return &history.RunRepo{DB: s.db}, nil
}

// engine builds an engine that saves pre-apply snapshots, records runs and
// prints progress to stdout
func (s *session) engine(progress io.Writer, dryRun bool) (*engine.Engine, error) {
	client, err := s.graphClient()
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithMetrics(s.metrics),
		engine.WithProgress(progress),
		engine.WithDryRun(dryRun),
		engine.WithSnapshotSaver(s.snapshotStore()),
	}
	if !dryRun {
		repo, err := s.runHistory()
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithRunRecorder(repo))
	}
	return engine.New(client, cfg.Engine, opts...)
}

// loadRequest reads, validates and normalizes a request document
func (s *session) loadRequest(path string) (*model.NormalizedAssignment, error) {
	request, err := loader.LoadRequest(path, s.validator)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	normalized, err := normalize.NormalizeRequest(request)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize request: %w", err)
	}
	return normalized, nil
}

// close writes the metrics textfile and releases the history database
func (s *session) close() error {
	var errs []error
	if cfg.MetricsFile != "" {
		if err := s.metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close run history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// withSession runs fn with a fresh session and closes it afterwards
func withSession(fn func(s *session) error) (err error) {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(s)
}

// reportError turns a finished run into the command's exit status
func reportError(report *model.RunReport, runErr error) error {
	if runErr != nil {
		return runErr
	}
	if _, failed, _ := report.Tally(); failed > 0 {
		return fmt.Errorf("%d operations failed", failed)
	}
	return nil
}
