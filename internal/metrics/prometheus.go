package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sourceplane/assignctl/internal/model"
)

// Prometheus implements Recorder with client_golang collectors. A CLI run is
// short-lived, so the registry is usually exported once through WriteTextfile
// for the node exporter textfile collector
type Prometheus struct {
	reg       *prometheus.Registry
	namespace string
	once      sync.Once

	fetches    *prometheus.CounterVec
	retries    *prometheus.CounterVec
	operations *prometheus.CounterVec
	runs       *prometheus.HistogramVec
}

// Compile-time assertion that Prometheus implements Recorder
var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a recorder backed by its own registry.
// namespace defaults to "assignctl"
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "assignctl"
	}
	return &Prometheus{reg: prometheus.NewRegistry(), namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "fetch",
			Name:      "apps_total",
			Help:      "App assignment fetches by final outcome.",
		}, []string{"outcome"})

		p.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "retries_total",
			Help:      "Retried remote calls by phase and error kind.",
		}, []string{"phase", "kind"})

		p.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "apply",
			Name:      "operations_total",
			Help:      "Applied diff operations by kind, outcome and error kind.",
		}, []string{"kind", "outcome", "error_kind"})

		p.runs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of apply and restore runs.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"})

		p.reg.MustRegister(p.fetches, p.retries, p.operations, p.runs)
	})
}

func (p *Prometheus) RecordFetch(outcome string) {
	p.ensureRegistered()
	p.fetches.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) RecordRetry(phase string, kind model.ErrorKind) {
	p.ensureRegistered()
	p.retries.WithLabelValues(phase, string(kind)).Inc()
}

func (p *Prometheus) RecordOperation(kind model.OperationKind, outcome model.Outcome, errKind model.ErrorKind) {
	p.ensureRegistered()
	p.operations.WithLabelValues(string(kind), string(outcome), string(errKind)).Inc()
}

func (p *Prometheus) ObserveRun(kind model.RunKind, seconds float64) {
	p.ensureRegistered()
	p.runs.WithLabelValues(string(kind)).Observe(seconds)
}

// Gatherer exposes the underlying registry
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	p.ensureRegistered()
	return p.reg
}

// WriteTextfile writes the current metric values in text exposition format
func (p *Prometheus) WriteTextfile(path string) error {
	p.ensureRegistered()
	if err := prometheus.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
