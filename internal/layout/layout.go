// Package layout provides a static DOM snapshot for running tours outside
// a browser.
//
// A snapshot lists element rectangles by id. Elements may declare an
// appearance delay to stand in for UI produced by an asynchronous render;
// such elements resolve only once the delay since the snapshot was loaded
// has elapsed.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"tourguide/internal/geometry"
)

// ErrUnsupportedFormat is returned for snapshot files that are neither
// YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported layout format")

// Element is one entry of a snapshot file.
type Element struct {
	ID            string `json:"id" yaml:"id"`
	geometry.Rect `yaml:",inline"`

	// AppearAfterMS delays the element's existence, in milliseconds.
	AppearAfterMS int `json:"appear_after_ms,omitempty" yaml:"appear_after_ms,omitempty"`
}

// File is the on-disk snapshot document.
type File struct {
	Viewport geometry.Rect `json:"viewport" yaml:"viewport"`
	Elements []Element     `json:"elements" yaml:"elements"`

	// Targets maps a step name to the element ids it punches out.
	Targets map[string][]string `json:"targets,omitempty" yaml:"targets,omitempty"`
}

type entry struct {
	rect  geometry.Rect
	delay time.Duration
}

// Snapshot is a goroutine-safe [geometry.DOM].
type Snapshot struct {
	mu       sync.RWMutex
	viewport geometry.Rect
	elements map[string]entry
	targets  map[string][]string
	loaded   time.Time
	now      func() time.Time
}

// New builds a snapshot from a parsed file.
func New(f File) (*Snapshot, error) {
	s := &Snapshot{
		viewport: f.Viewport,
		elements: make(map[string]entry, len(f.Elements)),
		targets:  f.Targets,
		now:      time.Now,
	}
	for i, e := range f.Elements {
		if e.ID == "" {
			return nil, fmt.Errorf("element %d: id is required", i)
		}
		if _, dup := s.elements[e.ID]; dup {
			return nil, fmt.Errorf("element %d: duplicate id %q", i, e.ID)
		}
		s.elements[e.ID] = entry{rect: e.Rect, delay: time.Duration(e.AppearAfterMS) * time.Millisecond}
	}
	s.loaded = s.now()
	return s, nil
}

// Load reads a snapshot file, picking the decoder by extension.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	return Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Parse decodes a snapshot in the given format ("yaml", "yml" or "json").
func Parse(data []byte, format string) (*Snapshot, error) {
	var f File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse layout: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse layout: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return New(f)
}

// BoundingRect implements [geometry.DOM].
func (s *Snapshot) BoundingRect(id string) (geometry.Rect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.elements[id]
	if !ok {
		return geometry.Rect{}, false
	}
	if e.delay > 0 && s.now().Sub(s.loaded) < e.delay {
		return geometry.Rect{}, false
	}
	return e.rect, true
}

// Set adds or moves an element. It exists immediately.
func (s *Snapshot) Set(id string, r geometry.Rect) {
	s.mu.Lock()
	s.elements[id] = entry{rect: r}
	s.mu.Unlock()
}

// Remove deletes an element.
func (s *Snapshot) Remove(id string) {
	s.mu.Lock()
	delete(s.elements, id)
	s.mu.Unlock()
}

// Viewport returns the snapshot's viewport rectangle.
func (s *Snapshot) Viewport() geometry.Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// IDs returns every declared element id in sorted order, including
// elements that have not appeared yet.
func (s *Snapshot) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.elements))
	for id := range s.elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Targets returns the punch-out ids declared for a step name.
func (s *Snapshot) Targets(step string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targets[step]
}
