package model

// OperationKind is the mutation a diff operation asks of the remote service
type OperationKind string

const (
	OpAdd    OperationKind = "add"
	OpUpdate OperationKind = "update"
	OpRemove OperationKind = "remove"
	OpNoop   OperationKind = "noop"
)

// DiffOperation is one step of a reconciliation plan for a single app
type DiffOperation struct {
	AppID          string            `json:"appId" yaml:"appId"`
	Kind           OperationKind     `json:"kind" yaml:"kind"`
	Target         AssignmentTarget  `json:"target" yaml:"target"`
	PreviousTarget *AssignmentTarget `json:"previousTarget,omitempty" yaml:"previousTarget,omitempty"`
	Fenced         bool              `json:"fenced,omitempty" yaml:"fenced,omitempty"` // noop only because the group is out of scope
}

// Mutates reports whether the operation changes remote state
func (op DiffOperation) Mutates() bool {
	return op.Kind != OpNoop
}

// FetchFailure records an app whose current state could not be read
type FetchFailure struct {
	AppID   string    `json:"appId" yaml:"appId"`
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
	Retries int       `json:"retries" yaml:"retries"`
}

// DiffSet is the output of reconciling desired against current state
type DiffSet struct {
	APIVersion    string          `json:"apiVersion" yaml:"apiVersion"`
	Kind          string          `json:"kind" yaml:"kind"`
	Metadata      Metadata        `json:"metadata" yaml:"metadata"`
	Scope         []string        `json:"scope" yaml:"scope"`
	Apps          []string        `json:"apps" yaml:"apps"`
	Operations    []DiffOperation `json:"operations" yaml:"operations"`
	FetchFailures []FetchFailure  `json:"fetchFailures,omitempty" yaml:"fetchFailures,omitempty"`
}

// Changes returns the operations that mutate remote state, in plan order
func (d *DiffSet) Changes() []DiffOperation {
	changes := make([]DiffOperation, 0, len(d.Operations))
	for _, op := range d.Operations {
		if op.Mutates() {
			changes = append(changes, op)
		}
	}
	return changes
}

// Empty reports whether the plan has nothing to change
func (d *DiffSet) Empty() bool {
	for _, op := range d.Operations {
		if op.Mutates() {
			return false
		}
	}
	return true
}

// Counts tallies operations by kind
func (d *DiffSet) Counts() map[OperationKind]int {
	counts := make(map[OperationKind]int, 4)
	for _, op := range d.Operations {
		counts[op.Kind]++
	}
	return counts
}

// ChangedApps returns the ids of apps with at least one mutating operation, in plan order
func (d *DiffSet) ChangedApps() []string {
	seen := make(map[string]bool)
	apps := make([]string, 0)
	for _, op := range d.Operations {
		if !op.Mutates() || seen[op.AppID] {
			continue
		}
		seen[op.AppID] = true
		apps = append(apps, op.AppID)
	}
	return apps
}
