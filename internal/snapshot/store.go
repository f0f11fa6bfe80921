package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/schema"
)

// FileStore keeps snapshots as individual files in one directory
type FileStore struct {
	Dir       string
	Compress  bool
	validator *schema.Validator
}

// Entry describes a stored snapshot without its states
type Entry struct {
	ID      string
	TakenAt time.Time
	Apps    int
	Path    string
}

// NewFileStore creates a store rooted at dir. Saved files are zstd
// compressed when compress is set
func NewFileStore(dir string, compress bool, validator *schema.Validator) *FileStore {
	return &FileStore{Dir: dir, Compress: compress, validator: validator}
}

// Save writes snap as <takenAt>-<id>.json and returns the file path
func (s *FileStore) Save(snap *model.Snapshot) (string, error) {
	if snap.ID == "" {
		return "", fmt.Errorf("snapshot must have an id")
	}
	name := fmt.Sprintf("%s-%s.json", snap.TakenAt.UTC().Format("20060102T150405Z"), snap.ID)
	if s.Compress {
		name += zstdSuffix
	}
	path := filepath.Join(s.Dir, name)
	if err := WriteFile(path, snap); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a snapshot by file path, or by id from the store directory
func (s *FileStore) Load(ref string) (*model.Snapshot, error) {
	if _, err := os.Stat(ref); err == nil {
		return ReadFile(ref, s.validator)
	}

	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.ID == ref {
			return ReadFile(entry.Path, s.validator)
		}
	}
	return nil, fmt.Errorf("snapshot %s not found in %s", ref, s.Dir)
}

// List returns the stored snapshots, newest first. Files that cannot be
// decoded are skipped
func (s *FileStore) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !isSnapshotFile(de.Name()) {
			continue
		}
		path := filepath.Join(s.Dir, de.Name())
		snap, err := ReadFile(path, nil)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{ID: snap.ID, TakenAt: snap.TakenAt, Apps: len(snap.States), Path: path})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TakenAt.After(entries[j].TakenAt)
	})
	return entries, nil
}

func isSnapshotFile(name string) bool {
	name = strings.TrimSuffix(name, zstdSuffix)
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
