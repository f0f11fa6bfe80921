package model

import "time"

// ErrorKind classifies why a remote call or an operation did not succeed
type ErrorKind string

const (
	KindThrottled  ErrorKind = "throttled"
	KindTransient  ErrorKind = "transient"
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindPermission ErrorKind = "permission"
	KindAuth       ErrorKind = "auth"
	KindUnknown    ErrorKind = "unknown"

	// Kinds produced by the executor rather than the remote service.
	KindCanceled   ErrorKind = "canceled"
	KindAborted    ErrorKind = "aborted"
	KindNoSnapshot ErrorKind = "no_snapshot"
)

// Outcome is the final state of one operation in a run
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// OperationResult is the per-item outcome of applying one diff operation
type OperationResult struct {
	Operation   DiffOperation `json:"operation" yaml:"operation"`
	Outcome     Outcome       `json:"outcome" yaml:"outcome"`
	ErrorKind   ErrorKind     `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
	Detail      string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	RetriesUsed int           `json:"retriesUsed" yaml:"retriesUsed"`
}

// RunKind distinguishes a bulk apply from a snapshot restore
type RunKind string

const (
	RunApply   RunKind = "apply"
	RunRestore RunKind = "restore"
)

// RunReport is the per-item report of one apply or restore run
type RunReport struct {
	ID          string            `json:"id" yaml:"id"`
	Kind        RunKind           `json:"kind" yaml:"kind"`
	StartedAt   time.Time         `json:"startedAt" yaml:"startedAt"`
	FinishedAt  time.Time         `json:"finishedAt" yaml:"finishedAt"`
	SnapshotRef string            `json:"snapshotRef,omitempty" yaml:"snapshotRef,omitempty"`
	Results     []OperationResult `json:"results" yaml:"results"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// Tally counts results by outcome
func (r *RunReport) Tally() (succeeded, failed, skipped int) {
	for _, result := range r.Results {
		switch result.Outcome {
		case OutcomeSuccess:
			succeeded++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}

// HasFailures reports whether any operation failed
func (r *RunReport) HasFailures() bool {
	_, failed, _ := r.Tally()
	return failed > 0
}
