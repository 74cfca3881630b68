package tour

import (
	"fmt"
	"sort"
)

// StepDef describes one registered step of a category.
type StepDef struct {
	// Name is the catalogue name of the step (e.g. "POST_POPOVER").
	Name string

	// Step is the step index.
	Step Step

	// AdminOnly marks steps shown only to privileged users. Next and
	// previous skip over them for everyone else.
	AdminOnly bool
}

// Definition is the catalogue entry of one category.
type Definition struct {
	Category Category

	// AutoTourStatus is the preference name of the category's auto-advance
	// flag. Defaults to "<category>_auto_tour_status".
	AutoTourStatus string

	// Steps are the category's steps. Order is irrelevant; the registry
	// sorts by step index.
	Steps []StepDef
}

// Registry is the fixed, ordered catalogue of steps per category.
//
// Create with [NewRegistry] and populate with [Registry.Register], or use
// [DefaultRegistry] for the built-in catalogue. The zero value is not usable.
type Registry struct {
	defs  map[Category]*Definition
	order []Category
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{defs: make(map[Category]*Definition)}
}

// Register adds or replaces a category definition.
//
// Returns an error if the definition has no steps, registers the
// [Finished] sentinel as a step, or repeats a step index.
func (r *Registry) Register(def Definition) error {
	if def.Category == "" {
		return fmt.Errorf("register tour: category is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("register tour %s: no steps", def.Category)
	}

	steps := make([]StepDef, len(def.Steps))
	copy(steps, def.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })

	seen := make(map[Step]bool, len(steps))
	for _, s := range steps {
		if s.Step.IsFinished() {
			return fmt.Errorf("register tour %s: step %s uses the finished sentinel", def.Category, s.Name)
		}
		if seen[s.Step] {
			return fmt.Errorf("register tour %s: duplicate step %d", def.Category, s.Step)
		}
		seen[s.Step] = true
	}

	if def.AutoTourStatus == "" {
		def.AutoTourStatus = string(def.Category) + "_auto_tour_status"
	}
	def.Steps = steps

	if _, ok := r.defs[def.Category]; !ok {
		r.order = append(r.order, def.Category)
	}
	r.defs[def.Category] = &def
	return nil
}

// Categories returns registered categories in registration order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}

// Definition returns the catalogue entry for a category.
func (r *Registry) Definition(c Category) (Definition, error) {
	def, ok := r.defs[c]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownCategory, c)
	}
	return *def, nil
}

// Steps returns the category's steps sorted by index.
func (r *Registry) Steps(c Category) ([]StepDef, error) {
	def, err := r.Definition(c)
	if err != nil {
		return nil, err
	}
	out := make([]StepDef, len(def.Steps))
	copy(out, def.Steps)
	return out, nil
}

// AutoTourStatus returns the preference name of the category's auto-advance flag.
func (r *Registry) AutoTourStatus(c Category) string {
	if def, ok := r.defs[c]; ok {
		return def.AutoTourStatus
	}
	return string(c) + "_auto_tour_status"
}

// Valid reports whether s is an addressable step of c. The [Finished]
// sentinel is never valid.
func (r *Registry) Valid(c Category, s Step) bool {
	_, ok := r.lookup(c, s)
	return ok
}

// Lookup returns the definition of step s in category c.
func (r *Registry) Lookup(c Category, s Step) (StepDef, bool) {
	i, ok := r.lookup(c, s)
	if !ok {
		return StepDef{}, false
	}
	return r.defs[c].Steps[i], true
}

// FirstStep returns the lowest step of c that is not below zero. Negative
// steps are reachable only through an explicit jump.
func (r *Registry) FirstStep(c Category) Step {
	def, ok := r.defs[c]
	if !ok {
		return 0
	}
	for _, s := range def.Steps {
		if s.Step >= 0 {
			return s.Step
		}
	}
	return def.Steps[0].Step
}

// LastStep returns the highest registered step of c, ignoring the
// [Finished] sentinel. Returns [Finished] only for unknown categories.
func (r *Registry) LastStep(c Category) Step {
	return r.LastStepFor(c, true)
}

// LastStepFor returns the highest step of c visible to the given audience.
// Admin-only steps are excluded when admin is false.
func (r *Registry) LastStepFor(c Category, admin bool) Step {
	def, ok := r.defs[c]
	if !ok {
		return Finished
	}
	for i := len(def.Steps) - 1; i >= 0; i-- {
		if admin || !def.Steps[i].AdminOnly {
			return def.Steps[i].Step
		}
	}
	return def.Steps[len(def.Steps)-1].Step
}

// Next returns the step that follows s for the given audience, or
// [Finished] when s is the last visible step.
//
// Returns [ErrUnknownCategory] or [ErrUnknownStep] when s is not registered.
func (r *Registry) Next(c Category, s Step, admin bool) (Step, error) {
	i, err := r.index(c, s)
	if err != nil {
		return s, err
	}
	if s == r.LastStepFor(c, admin) {
		return Finished, nil
	}
	steps := r.defs[c].Steps
	for j := i + 1; j < len(steps); j++ {
		if admin || !steps[j].AdminOnly {
			return steps[j].Step, nil
		}
	}
	return Finished, nil
}

// Prev returns the step that precedes s for the given audience. It never
// moves from a non-negative step to a negative one, so at step 0 (or the
// first step) it returns s unchanged.
func (r *Registry) Prev(c Category, s Step, admin bool) (Step, error) {
	i, err := r.index(c, s)
	if err != nil {
		return s, err
	}
	steps := r.defs[c].Steps
	for j := i - 1; j >= 0; j-- {
		if s >= 0 && steps[j].Step < 0 {
			break
		}
		if admin || !steps[j].AdminOnly {
			return steps[j].Step, nil
		}
	}
	return s, nil
}

func (r *Registry) index(c Category, s Step) (int, error) {
	if _, ok := r.defs[c]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCategory, c)
	}
	i, ok := r.lookup(c, s)
	if !ok {
		return 0, fmt.Errorf("%w: %s step %d", ErrUnknownStep, c, s)
	}
	return i, nil
}

func (r *Registry) lookup(c Category, s Step) (int, bool) {
	def, ok := r.defs[c]
	if !ok || s.IsFinished() {
		return 0, false
	}
	i := sort.Search(len(def.Steps), func(i int) bool { return def.Steps[i].Step >= s })
	if i < len(def.Steps) && def.Steps[i].Step == s {
		return i, true
	}
	return 0, false
}
