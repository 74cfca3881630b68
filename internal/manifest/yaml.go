package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogueFile represents the raw YAML structure of a tour catalogue.
type catalogueFile struct {
	Steps []StepEntry `yaml:"steps"`
}

// ReadYAMLFromBytes parses a tour catalogue from YAML bytes.
//
// The YAML format is:
//
//	steps:
//	  - category: crt_tutorial_step
//	    name: WELCOME_POPOVER
//	    step: 0
//	    auto_tour_status: crt_tutorial_auto_tour_status
//	  - category: crt_tutorial_step
//	    name: LIST_POPOVER
//	    step: 1
func ReadYAMLFromBytes(data []byte) (*Manifest, error) {
	var raw catalogueFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if len(raw.Steps) == 0 {
		return nil, fmt.Errorf("manifest contains no step entries")
	}
	for i, e := range raw.Steps {
		if e.Category == "" {
			return nil, fmt.Errorf("manifest entry %d: category is required", i+1)
		}
	}

	return &Manifest{Entries: raw.Steps}, nil
}

// Load reads a catalogue file, choosing the format from its extension
// (.yaml/.yml for YAML, anything else for CSV).
func Load(path string) (*Manifest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		return ReadYAMLFromBytes(data)
	default:
		return ReadFromFile(path)
	}
}
