package session

import (
	"context"

	"tourguide/internal/prefs"
	"tourguide/internal/tour"
)

// Event describes a transition handed to hooks.
type Event struct {
	UserID   string
	Category tour.Category
	From     tour.Step
	To       tour.Step
	Admin    bool
}

// HookFunc runs a category-specific side effect. Returned preferences are
// persisted after the transition's own records, in a separate batch.
type HookFunc func(ctx context.Context, e Event) []prefs.Preference

// Handler is the enter/leave pair bound to one (category, step).
// Either function may be nil.
type Handler struct {
	OnEnter HookFunc
	OnLeave HookFunc
}

type hookKey struct {
	category tour.Category
	step     tour.Step
}

// Hooks dispatches side effects by (category, step).
//
// The zero value is not usable; create with [NewHooks] or [DefaultHooks].
type Hooks struct {
	steps  map[hookKey][]Handler
	finish map[tour.Category][]HookFunc
	skip   map[tour.Category][]HookFunc
}

// NewHooks returns an empty hook table.
func NewHooks() *Hooks {
	return &Hooks{
		steps:  make(map[hookKey][]Handler),
		finish: make(map[tour.Category][]HookFunc),
		skip:   make(map[tour.Category][]HookFunc),
	}
}

// Register binds h to a step. Multiple handlers run in registration order.
func (h *Hooks) Register(c tour.Category, s tour.Step, handler Handler) {
	k := hookKey{c, s}
	h.steps[k] = append(h.steps[k], handler)
}

// OnFinish registers fn to run when c's tour is completed via next.
func (h *Hooks) OnFinish(c tour.Category, fn HookFunc) {
	h.finish[c] = append(h.finish[c], fn)
}

// OnSkip registers fn to run when c's tour is skipped.
func (h *Hooks) OnSkip(c tour.Category, fn HookFunc) {
	h.skip[c] = append(h.skip[c], fn)
}

func (h *Hooks) enter(ctx context.Context, e Event) []prefs.Preference {
	var out []prefs.Preference
	for _, handler := range h.steps[hookKey{e.Category, e.To}] {
		if handler.OnEnter != nil {
			out = append(out, handler.OnEnter(ctx, e)...)
		}
	}
	return out
}

func (h *Hooks) leave(ctx context.Context, e Event) []prefs.Preference {
	var out []prefs.Preference
	for _, handler := range h.steps[hookKey{e.Category, e.From}] {
		if handler.OnLeave != nil {
			out = append(out, handler.OnLeave(ctx, e)...)
		}
	}
	return out
}

func (h *Hooks) finished(ctx context.Context, e Event) []prefs.Preference {
	return runAll(ctx, e, h.finish[e.Category])
}

func (h *Hooks) skipped(ctx context.Context, e Event) []prefs.Preference {
	return runAll(ctx, e, h.skip[e.Category])
}

func runAll(ctx context.Context, e Event, fns []HookFunc) []prefs.Preference {
	var out []prefs.Preference
	for _, fn := range fns {
		out = append(out, fn(ctx, e)...)
	}
	return out
}

// Preferences written by the built-in onboarding hooks.
const (
	ABTestCategory       = "ab_test_preference_value"
	ABCreateFirstChannel = "create_first_channel"
	TaskListCategory     = "onboarding_task_list"
	TaskListOpen         = "onboarding_task_list_open"
)

// DefaultHooks returns the built-in hook table:
//   - leaving the onboarding ADD_FIRST_CHANNEL step clears the
//     create-first-channel A/B preference so the auto tour can run
//   - finishing onboarding opens the task list for admins
func DefaultHooks() *Hooks {
	h := NewHooks()
	h.Register(tour.Onboarding, tour.StepAddFirstChannel, Handler{
		OnLeave: func(context.Context, Event) []prefs.Preference {
			return []prefs.Preference{{Category: ABTestCategory, Name: ABCreateFirstChannel, Value: ""}}
		},
	})
	h.OnFinish(tour.Onboarding, func(_ context.Context, e Event) []prefs.Preference {
		if !e.Admin {
			return nil
		}
		return []prefs.Preference{{Category: TaskListCategory, Name: TaskListOpen, Value: "true"}}
	})
	return h
}
