package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/schema"
)

// Format is the document encoding of a snapshot file
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const zstdSuffix = ".zst"

// zstd.Encoder and zstd.Decoder are safe for concurrent use with EncodeAll/DecodeAll
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// document is the on-disk shape of a snapshot. Remote assignment ids are not
// part of it: they are reassigned by the service whenever an edge is recreated
type document struct {
	APIVersion string          `json:"apiVersion" yaml:"apiVersion"`
	Kind       string          `json:"kind" yaml:"kind"`
	ID         string          `json:"id,omitempty" yaml:"id,omitempty"`
	TakenAt    string          `json:"takenAt" yaml:"takenAt"`
	States     []stateDocument `json:"states" yaml:"states"`
}

type stateDocument struct {
	AppID   string           `json:"appId" yaml:"appId"`
	Targets []targetDocument `json:"targets" yaml:"targets"`
}

type targetDocument struct {
	GroupID    string           `json:"groupId" yaml:"groupId"`
	Intent     model.Intent     `json:"intent" yaml:"intent"`
	FilterID   string           `json:"filterId,omitempty" yaml:"filterId,omitempty"`
	FilterMode model.FilterMode `json:"filterMode,omitempty" yaml:"filterMode,omitempty"`
}

// FormatFromPath picks the encoding from a file name: .yaml and .yml mean
// YAML, anything else JSON. A trailing .zst marks the file as compressed
func FormatFromPath(path string) (Format, bool) {
	compressed := strings.HasSuffix(path, zstdSuffix)
	base := strings.TrimSuffix(path, zstdSuffix)
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml":
		return FormatYAML, compressed
	default:
		return FormatJSON, compressed
	}
}

// Encode serializes a snapshot
func Encode(snap *model.Snapshot, format Format) ([]byte, error) {
	doc := toDocument(snap)
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode snapshot as YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode snapshot as YAML: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot as JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s", format)
	}
}

// Decode parses a JSON or YAML snapshot document. When validator is non-nil
// the document is checked against the snapshot schema first
func Decode(data []byte, validator *schema.Validator) (*model.Snapshot, error) {
	if validator != nil {
		if err := validator.ValidateSnapshot(data); err != nil {
			return nil, fmt.Errorf("snapshot failed schema validation: %w", err)
		}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if doc.Kind != model.KindSnapshot {
		return nil, fmt.Errorf("unexpected document kind %q, want %s", doc.Kind, model.KindSnapshot)
	}

	snap, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return snap, nil
}

// WriteFile encodes snap into path, choosing format and compression from the name
func WriteFile(path string, snap *model.Snapshot) error {
	format, compressed := FormatFromPath(path)
	data, err := Encode(snap, format)
	if err != nil {
		return err
	}
	if compressed {
		data = zstdEncoder.EncodeAll(data, nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile
func ReadFile(path string, validator *schema.Validator) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	if _, compressed := FormatFromPath(path); compressed {
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress snapshot %s: %w", path, err)
		}
	}
	snap, err := Decode(data, validator)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

func toDocument(snap *model.Snapshot) document {
	doc := document{
		APIVersion: model.APIVersion,
		Kind:       model.KindSnapshot,
		ID:         snap.ID,
		TakenAt:    snap.TakenAt.UTC().Format(time.RFC3339Nano),
		States:     make([]stateDocument, 0, len(snap.States)),
	}
	for _, state := range snap.States {
		sd := stateDocument{AppID: state.AppID, Targets: make([]targetDocument, 0, len(state.Targets))}
		for _, target := range state.Targets {
			sd.Targets = append(sd.Targets, targetDocument{
				GroupID:    target.GroupID,
				Intent:     target.Intent,
				FilterID:   target.FilterID,
				FilterMode: target.FilterMode,
			})
		}
		doc.States = append(doc.States, sd)
	}
	return doc
}

func fromDocument(doc document) (*model.Snapshot, error) {
	takenAt, err := time.Parse(time.RFC3339Nano, doc.TakenAt)
	if err != nil {
		return nil, fmt.Errorf("invalid takenAt %q: %w", doc.TakenAt, err)
	}
	snap := &model.Snapshot{
		ID:      doc.ID,
		TakenAt: takenAt,
		States:  make([]model.AppAssignmentState, 0, len(doc.States)),
	}
	for _, sd := range doc.States {
		state := model.AppAssignmentState{AppID: sd.AppID, Targets: make([]model.AssignmentTarget, 0, len(sd.Targets))}
		for _, td := range sd.Targets {
			state.Targets = append(state.Targets, model.AssignmentTarget{
				GroupID:    td.GroupID,
				Intent:     td.Intent,
				FilterID:   td.FilterID,
				FilterMode: td.FilterMode,
			})
		}
		snap.States = append(snap.States, state)
	}
	return snap, nil
}
