package model

// BulkAssignment is the operator-facing request document for one group-first bulk operation
type BulkAssignment struct {
	APIVersion string             `yaml:"apiVersion" json:"apiVersion"`
	Kind       string             `yaml:"kind" json:"kind"`
	Metadata   Metadata           `yaml:"metadata" json:"metadata"`
	Spec       BulkAssignmentSpec `yaml:"spec" json:"spec"`
}

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// BulkAssignmentSpec lists the groups and apps to combine and the intent to apply
type BulkAssignmentSpec struct {
	Intent string     `yaml:"intent" json:"intent"`
	Groups []Group    `yaml:"groups" json:"groups"`
	Apps   []App      `yaml:"apps" json:"apps"`
	Filter *FilterRef `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// NormalizedAssignment is the canonical form of a request, ready for the matrix builder
type NormalizedAssignment struct {
	Metadata Metadata
	Intent   Intent
	Groups   []Group
	Apps     []App
	Filter   *FilterRef
}

const (
	APIVersion         = "assignctl.sourceplane.io/v1"
	KindBulkAssignment = "BulkAssignment"
	KindPlan           = "AssignmentPlan"
	KindSnapshot       = "AssignmentSnapshot"
)
