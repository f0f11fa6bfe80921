package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.schema.yaml
var schemaFS embed.FS

// Validator handles JSON schema validation of assignctl documents
type Validator struct {
	requestSchema  *jsonschema.Schema
	snapshotSchema *jsonschema.Schema
	planSchema     *jsonschema.Schema
}

// NewValidator compiles the embedded request, snapshot and plan schemas
func NewValidator() (*Validator, error) {
	v := &Validator{}

	requestSchema, err := loadSchema("schemas/request.schema.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load request schema: %w", err)
	}
	v.requestSchema = requestSchema

	snapshotSchema, err := loadSchema("schemas/snapshot.schema.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot schema: %w", err)
	}
	v.snapshotSchema = snapshotSchema

	planSchema, err := loadSchema("schemas/plan.schema.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load plan schema: %w", err)
	}
	v.planSchema = planSchema

	return v, nil
}

// ValidateRequest validates a BulkAssignment document
func (v *Validator) ValidateRequest(data []byte) error {
	return validate(v.requestSchema, data)
}

// ValidateSnapshot validates an AssignmentSnapshot document
func (v *Validator) ValidateSnapshot(data []byte) error {
	return validate(v.snapshotSchema, data)
}

// ValidatePlan validates an AssignmentPlan document
func (v *Validator) ValidatePlan(data []byte) error {
	return validate(v.planSchema, data)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	if schema == nil {
		return fmt.Errorf("schema not loaded")
	}
	doc, err := Decode(data)
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

// Decode parses a YAML or JSON document into the generic form the schema
// validator expects (maps, slices, strings, bools and json.Number)
func Decode(data []byte) (interface{}, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document to JSON: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// loadSchema loads and compiles an embedded schema file (JSON or YAML)
func loadSchema(path string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	// Parse YAML to interface{} (supports both YAML and JSON)
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Convert to JSON for schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schema, err := jsonschema.CompileString(path, string(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return schema, nil
}
