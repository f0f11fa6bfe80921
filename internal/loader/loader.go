package loader

import (
	"fmt"
	"os"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/schema"
	"gopkg.in/yaml.v3"
)

// LoadRequest loads and parses a BulkAssignment file (YAML or JSON).
// When validator is non-nil the document is checked against the request schema first
func LoadRequest(path string, validator *schema.Validator) (*model.BulkAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	if validator != nil {
		if err := validator.ValidateRequest(data); err != nil {
			return nil, fmt.Errorf("request %s failed schema validation: %w", path, err)
		}
	}

	var request model.BulkAssignment
	if err := yaml.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	if request.Kind != "" && request.Kind != model.KindBulkAssignment {
		return nil, fmt.Errorf("unexpected document kind %q in %s, want %s", request.Kind, path, model.KindBulkAssignment)
	}

	return &request, nil
}

// LoadPlan loads a plan previously written by the plan command
func LoadPlan(path string, validator *schema.Validator) (*model.DiffSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	if validator != nil {
		if err := validator.ValidatePlan(data); err != nil {
			return nil, fmt.Errorf("plan %s failed schema validation: %w", path, err)
		}
	}

	var plan model.DiffSet
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	if plan.Kind != model.KindPlan {
		return nil, fmt.Errorf("unexpected document kind %q in %s, want %s", plan.Kind, path, model.KindPlan)
	}

	return &plan, nil
}
