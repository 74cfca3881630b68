// Package manifest reads tour catalogue files.
//
// A catalogue lists the steps of one or more tour categories so that tours
// can be defined without recompiling. Two formats are supported: CSV and YAML.
//
// CSV format:
//
//	category,name,step,admin_only,auto_tour_status
//	crt_tutorial_step,WELCOME_POPOVER,0,,crt_tutorial_auto_tour_status
//	crt_tutorial_step,LIST_POPOVER,1,,
//	crt_tutorial_step,UNREAD_POPOVER,2,,
//	tutorial_step,START_TRIAL,6,true,
//
// Rows of the same category may appear in any order; the registry sorts
// steps by index. The auto_tour_status column is optional and only the first
// non-empty value per category is used.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tourguide/internal/tour"
)

// StepEntry represents a single row of a tour catalogue.
type StepEntry struct {
	// Category is the tour category the step belongs to.
	Category string `yaml:"category"`

	// Name is the catalogue name of the step (e.g. "POST_POPOVER").
	Name string `yaml:"name"`

	// Step is the step index within the category.
	Step int `yaml:"step"`

	// AdminOnly marks steps shown only to privileged users.
	AdminOnly bool `yaml:"admin_only"`

	// AutoTourStatus overrides the preference name of the category's
	// auto-advance flag.
	AutoTourStatus string `yaml:"auto_tour_status"`
}

// Manifest holds all step entries parsed from a catalogue file.
type Manifest struct {
	// Entries are the step entries in file order.
	Entries []StepEntry
}

// ReadFromFile reads and parses a CSV tour catalogue.
func ReadFromFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return readFromReader(f)
}

// ReadFromString parses a CSV tour catalogue from a string.
func ReadFromString(data string) (*Manifest, error) {
	return readFromReader(strings.NewReader(data))
}

func readFromReader(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}

	colIndex := buildColumnIndex(header)
	if err := validateColumns(colIndex); err != nil {
		return nil, err
	}

	var entries []StepEntry
	lineNum := 1 // header was line 1
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest line %d: %w", lineNum, err)
		}

		entry := StepEntry{
			Category:       getField(record, colIndex, "category"),
			Name:           getField(record, colIndex, "name"),
			AutoTourStatus: getField(record, colIndex, "auto_tour_status"),
		}
		if entry.Category == "" {
			return nil, fmt.Errorf("manifest line %d: category is required", lineNum)
		}

		step, err := strconv.Atoi(getField(record, colIndex, "step"))
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: invalid step: %w", lineNum, err)
		}
		entry.Step = step

		if raw := getField(record, colIndex, "admin_only"); raw != "" {
			adminOnly, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: invalid admin_only: %w", lineNum, err)
			}
			entry.AdminOnly = adminOnly
		}

		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest contains no step entries")
	}

	return &Manifest{Entries: entries}, nil
}

// requiredColumns are the columns that must be present in the manifest CSV.
var requiredColumns = []string{"category", "step"}

func buildColumnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return index
}

func validateColumns(colIndex map[string]int) error {
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("manifest missing required column: %s", col)
		}
	}
	return nil
}

func getField(record []string, colIndex map[string]int, column string) string {
	idx, ok := colIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// Categories returns the unique categories in order of first appearance.
func (m *Manifest) Categories() []tour.Category {
	seen := make(map[string]bool)
	var categories []tour.Category
	for _, e := range m.Entries {
		if !seen[e.Category] {
			seen[e.Category] = true
			categories = append(categories, tour.Category(e.Category))
		}
	}
	return categories
}

// Definitions groups entries into one [tour.Definition] per category.
func (m *Manifest) Definitions() []tour.Definition {
	byCategory := make(map[tour.Category]*tour.Definition)
	for _, e := range m.Entries {
		c := tour.Category(e.Category)
		def, ok := byCategory[c]
		if !ok {
			def = &tour.Definition{Category: c}
			byCategory[c] = def
		}
		if def.AutoTourStatus == "" {
			def.AutoTourStatus = e.AutoTourStatus
		}
		def.Steps = append(def.Steps, tour.StepDef{
			Name:      e.Name,
			Step:      tour.Step(e.Step),
			AdminOnly: e.AdminOnly,
		})
	}

	categories := m.Categories()
	defs := make([]tour.Definition, 0, len(categories))
	for _, c := range categories {
		defs = append(defs, *byCategory[c])
	}
	return defs
}

// Apply registers every category of the manifest into r, replacing
// existing definitions of the same category.
func (m *Manifest) Apply(r *tour.Registry) error {
	for _, def := range m.Definitions() {
		if err := r.Register(def); err != nil {
			return fmt.Errorf("apply manifest: %w", err)
		}
	}
	return nil
}
