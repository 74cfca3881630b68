// Package tour defines tour categories, step indices and the step registry.
//
// A tour category is an independent guided tour with its own ordered set of
// steps and its own progress record. Steps are small integers assigned in the
// order they are shown; the reserved [Finished] value marks a tour that was
// either completed or explicitly skipped.
//
// Key types:
//   - [Category] identifies a tour (e.g. [Onboarding], [CRTTutorial])
//   - [Step] is a step index within a category
//   - [State] is the per-user progress record for one category
//   - [Registry] is the ordered catalogue of steps per category
package tour

import (
	"errors"
	"fmt"
	"strconv"
)

// Category identifies an independent tour. The value doubles as the
// preference category the step pointer is stored under.
type Category string

// Built-in tour categories.
const (
	Onboarding    Category = "tutorial_step"
	CRTTutorial   Category = "crt_tutorial_step"
	CRTThreadPane Category = "crt_thread_pane_step"
	StartTrial    Category = "start_trial"
)

// Step is a step index, unique within a category.
type Step int

// Finished is the sentinel step shared by completed and skipped tours.
// It is numerically larger than every registered step but is never an
// addressable step.
const Finished Step = 999

// String returns the decimal encoding used in preference values.
func (s Step) String() string {
	return strconv.Itoa(int(s))
}

// IsFinished reports whether s is the terminal sentinel.
func (s Step) IsFinished() bool {
	return s == Finished
}

// ParseStep decodes a preference value into a [Step].
func ParseStep(value string) (Step, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid step value %q: %w", value, err)
	}
	return Step(n), nil
}

// Auto-tour status values as stored in the preference store.
const (
	AutoTourEnabled  = "0"
	AutoTourDisabled = "1"
)

// EncodeAutoTour returns the stored form of an auto-advance flag.
func EncodeAutoTour(enabled bool) string {
	if enabled {
		return AutoTourEnabled
	}
	return AutoTourDisabled
}

// DecodeAutoTour parses a stored auto-advance flag. Unknown or empty values
// decode to the default (enabled).
func DecodeAutoTour(value string) bool {
	switch value {
	case AutoTourDisabled, "false":
		return false
	default:
		return true
	}
}

// State is the progress record of one user in one category.
type State struct {
	CurrentStep Step
	AutoAdvance bool
}

// Sentinel errors for step resolution.
var (
	// ErrUnknownCategory indicates the category has no registry entry.
	ErrUnknownCategory = errors.New("unknown tour category")

	// ErrUnknownStep indicates the step is not registered for the category.
	ErrUnknownStep = errors.New("step not registered for category")
)
