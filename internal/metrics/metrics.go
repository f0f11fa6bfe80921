// Package metrics records fetch, retry and operation outcomes of engine runs
package metrics

import "github.com/sourceplane/assignctl/internal/model"

// Recorder receives engine observations. Implementations must be safe for
// concurrent use; fetch and apply workers report from many goroutines
type Recorder interface {
	// RecordFetch counts one app fetch by final outcome ("success" or an error kind).
	RecordFetch(outcome string)

	// RecordRetry counts one retry attempt in a phase ("fetch" or "apply").
	RecordRetry(phase string, kind model.ErrorKind)

	// RecordOperation counts one applied operation by kind and outcome.
	RecordOperation(kind model.OperationKind, outcome model.Outcome, errKind model.ErrorKind)

	// ObserveRun records the wall-clock duration of a run in seconds.
	ObserveRun(kind model.RunKind, seconds float64)
}

// Nop discards every observation
type Nop struct{}

// Compile-time assertion that Nop implements Recorder
var _ Recorder = Nop{}

// NewNop creates a no-op recorder
func NewNop() Nop { return Nop{} }

func (Nop) RecordFetch(string) {}
func (Nop) RecordRetry(string, model.ErrorKind) {}
func (Nop) RecordOperation(model.OperationKind, model.Outcome, model.ErrorKind) {}
func (Nop) ObserveRun(model.RunKind, float64) {}
