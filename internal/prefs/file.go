package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultFilePath is the preference file location relative to the base path.
const DefaultFilePath = ".tourguide/preferences.yaml"

// ResolvePath determines the preference file location.
//
// Resolution order:
//  1. TOURGUIDE_PREFS_PATH environment variable (used as-is if set)
//  2. Explicit path parameter (if non-empty)
//  3. [DefaultFilePath] under basePath
func ResolvePath(basePath, path string) string {
	if envPath := os.Getenv("TOURGUIDE_PREFS_PATH"); envPath != "" {
		return envPath
	}
	if path != "" {
		return path
	}
	return filepath.Join(basePath, DefaultFilePath)
}

// preferenceFile is the YAML document layout.
type preferenceFile struct {
	Preferences []Preference `yaml:"preferences"`
}

// FileStore persists preferences to a YAML file.
//
// Reads go to disk every time, so changes written by another session are
// visible immediately. Writes are read-modify-write under a mutex and
// replace the file atomically.
type FileStore struct {
	mu     sync.Mutex
	path   string
	userID string
}

// NewFileStore returns a [FileStore] for userID backed by path. The file
// and its directory are created on first save.
func NewFileStore(path, userID string) *FileStore {
	return &FileStore{path: path, userID: userID}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Read parses the complete preference file. A missing file reads as empty.
func (f *FileStore) Read() ([]Preference, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	var doc preferenceFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	return doc.Preferences, nil
}

// List implements [Lister].
func (f *FileStore) List(ctx context.Context) ([]Preference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := f.Read()
	if err != nil {
		return nil, err
	}
	var out []Preference
	for _, p := range all {
		if p.UserID == f.userID {
			out = append(out, p)
		}
	}
	sortPreferences(out)
	return out, nil
}

// Get implements [Store]. Read errors are reported as absent keys so the
// engine falls back to defaults.
func (f *FileStore) Get(category, name string) (string, bool) {
	all, err := f.Read()
	if err != nil {
		return "", false
	}
	for _, p := range all {
		if p.UserID == f.userID && p.Category == category && p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Save implements [Store].
func (f *FileStore) Save(ctx context.Context, userID string, prefs []Preference) error {
	if userID == "" {
		return ErrUserRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.Read()
	if err != nil {
		return err
	}

	type rowKey struct{ user, category, name string }
	merged := make(map[rowKey]Preference, len(existing)+len(prefs))
	for _, p := range existing {
		merged[rowKey{p.UserID, p.Category, p.Name}] = p
	}
	for _, p := range prefs {
		p.UserID = userID
		merged[rowKey{p.UserID, p.Category, p.Name}] = p
	}

	doc := preferenceFile{Preferences: make([]Preference, 0, len(merged))}
	for _, p := range merged {
		doc.Preferences = append(doc.Preferences, p)
	}
	sort.Slice(doc.Preferences, func(i, j int) bool {
		a, b := doc.Preferences[i], doc.Preferences[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Name < b.Name
	})

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	// Write back atomically (write to temp, then rename)
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	return nil
}
