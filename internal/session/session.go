// Package session implements the tour state machine and its per-view
// presentation manager.
//
// A [Session] owns the progress of one user in one tour category: the
// current step and the auto-advance flag. It is mutated only through its
// transition methods, each of which updates local state first, then fires
// telemetry, runs hooks and persists the result asynchronously.
//
// A [Tip] is created per rendered view of a step. It tracks whether it is
// visible, whether it has auto-shown in its lifetime, the deferred show
// timer, the DOM availability poller and the punch-out geometry.
//
// Key types:
//   - [Session] is the per-(user, category) state machine
//   - [Hooks] dispatches category-specific side effects by step
//   - [Tip] is the per-mount presentation manager
//   - [View] is the read-only snapshot a renderer draws from
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"tourguide/internal/prefs"
	"tourguide/internal/telemetry"
	"tourguide/internal/tour"
)

// Sentinel errors for session transitions.
var (
	// ErrInvalidStep indicates a jump target that is not registered for the
	// category. State is left unchanged.
	ErrInvalidStep = errors.New("invalid jump target")

	// ErrTourFinished indicates next or previous was requested on a tour at
	// the finished sentinel. Only jump or start over re-enter it.
	ErrTourFinished = errors.New("tour is finished")
)

// Observer is notified after every state change.
type Observer func(tour.State)

// Session is the tour state machine of one user in one category.
//
// Create with [New]. Dependencies beyond the registry and store are
// optional and configured with the Set methods before use.
type Session struct {
	userID   string
	category tour.Category
	registry *tour.Registry
	store    prefs.Store

	sink         telemetry.Sink
	hooks        *Hooks
	logger       *zap.Logger
	telemetryTag string
	admin        bool
	maxRetries   uint
	retryBackoff time.Duration

	mu        sync.Mutex
	state     tour.State
	observers map[int]Observer
	nextObs   int

	writes sync.WaitGroup
	tail   chan struct{}
}

// New creates a session and loads the user's progress from store.
//
// Returns [tour.ErrUnknownCategory] if category is not registered.
func New(userID string, category tour.Category, registry *tour.Registry, store prefs.Store) (*Session, error) {
	if _, err := registry.Definition(category); err != nil {
		return nil, err
	}
	s := &Session{
		userID:       userID,
		category:     category,
		registry:     registry,
		store:        store,
		sink:         telemetry.Nop,
		hooks:        NewHooks(),
		logger:       zap.NewNop(),
		telemetryTag: DefaultTelemetryTag(category),
		observers:    make(map[int]Observer),
	}
	s.state = s.read()
	return s, nil
}

// DefaultTelemetryTag derives the telemetry base tag from the category by
// dropping a trailing "_step".
func DefaultTelemetryTag(c tour.Category) string {
	return strings.TrimSuffix(string(c), "_step")
}

// SetTelemetry configures the telemetry sink. A panicking sink never aborts
// a transition.
func (s *Session) SetTelemetry(sink telemetry.Sink) {
	s.sink = telemetry.Safe(sink, s.logger)
}

// SetHooks configures the hook table. Nil disables hooks.
func (s *Session) SetHooks(h *Hooks) {
	if h == nil {
		h = NewHooks()
	}
	s.hooks = h
}

// SetLogger configures the logger used for persistence failures.
func (s *Session) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	s.logger = l.With(zap.String("category", string(s.category)), zap.String("user", s.userID))
}

// SetTelemetryTag overrides the telemetry base tag.
func (s *Session) SetTelemetryTag(tag string) {
	s.telemetryTag = tag
}

// SetAdmin marks the user as privileged. Admin-only steps are skipped
// by next and previous for everyone else.
func (s *Session) SetAdmin(admin bool) {
	s.mu.Lock()
	s.admin = admin
	s.mu.Unlock()
}

// SetRetry enables retrying failed preference writes up to maxRetries times
// with exponential backoff starting at initial. Zero disables retries.
func (s *Session) SetRetry(maxRetries uint, initial time.Duration) {
	s.maxRetries = maxRetries
	s.retryBackoff = initial
}

// UserID returns the session's user.
func (s *Session) UserID() string { return s.userID }

// Category returns the session's tour category.
func (s *Session) Category() tour.Category { return s.category }

// Registry returns the step registry the session validates against.
func (s *Session) Registry() *tour.Registry { return s.registry }

// Admin reports whether the user is privileged.
func (s *Session) Admin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin
}

// State returns the current progress record.
func (s *Session) State() tour.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastStep returns the last content step visible to this user.
func (s *Session) LastStep() tour.Step {
	return s.registry.LastStepFor(s.category, s.Admin())
}

// Subscribe registers fn to be called after every state change. The
// returned function removes the subscription.
func (s *Session) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Next advances to the following step, or to [tour.Finished] at the last
// step. Returns [ErrTourFinished] if the tour already ended.
func (s *Session) Next(ctx context.Context) (tour.State, error) {
	s.mu.Lock()
	from := s.state.CurrentStep
	if from.IsFinished() {
		s.mu.Unlock()
		return s.State(), ErrTourFinished
	}
	to, err := s.registry.Next(s.category, from, s.admin)
	if err != nil {
		s.mu.Unlock()
		return s.State(), err
	}
	s.state.CurrentStep = to
	state, admin := s.state, s.admin
	s.mu.Unlock()

	s.track(from, telemetry.ActionNext)

	e := s.event(from, to, admin)
	extra := s.hooks.leave(ctx, e)
	if to.IsFinished() {
		extra = append(extra, s.hooks.finished(ctx, e)...)
	} else {
		extra = append(extra, s.hooks.enter(ctx, e)...)
	}

	s.persist(ctx, s.progress(state), extra)
	s.notify(state)
	return state, nil
}

// Previous moves back one step. It is a no-op at the first step and never
// moves from a non-negative step to a negative one. Returns
// [ErrTourFinished] if the tour already ended.
func (s *Session) Previous(ctx context.Context) (tour.State, error) {
	s.mu.Lock()
	from := s.state.CurrentStep
	if from.IsFinished() {
		s.mu.Unlock()
		return s.State(), ErrTourFinished
	}
	to, err := s.registry.Prev(s.category, from, s.admin)
	if err != nil || to == from {
		s.mu.Unlock()
		return s.State(), err
	}
	s.state.CurrentStep = to
	state, admin := s.state, s.admin
	s.mu.Unlock()

	s.track(from, telemetry.ActionPrev)

	e := s.event(from, to, admin)
	extra := s.hooks.leave(ctx, e)
	extra = append(extra, s.hooks.enter(ctx, e)...)

	s.persist(ctx, s.progress(state), extra)
	s.notify(state)
	return state, nil
}

// Jump moves directly to step. It may re-enter a finished tour.
// Returns [ErrInvalidStep] without changing state if step is not
// registered for the category.
func (s *Session) Jump(ctx context.Context, step tour.Step) (tour.State, error) {
	if !s.registry.Valid(s.category, step) {
		return s.State(), fmt.Errorf("%w: %s step %d", ErrInvalidStep, s.category, step)
	}

	s.mu.Lock()
	from := s.state.CurrentStep
	s.state.CurrentStep = step
	state, admin := s.state, s.admin
	s.mu.Unlock()

	s.track(step, telemetry.ActionJump)
	extra := s.hooks.enter(ctx, s.event(from, step, admin))

	s.persist(ctx, s.progress(state), extra)
	s.notify(state)
	return state, nil
}

// Dismiss hides the tour and disables auto-advance. The step is never
// changed. tracked reports whether the dismissal was a genuine outside
// interaction worth a telemetry event.
func (s *Session) Dismiss(ctx context.Context, tracked bool) tour.State {
	s.mu.Lock()
	s.state.AutoAdvance = false
	state := s.state
	s.mu.Unlock()

	if tracked {
		s.track(state.CurrentStep, telemetry.ActionDismiss)
	}

	s.persist(ctx, []prefs.Preference{s.autoPreference(false)}, nil)
	s.notify(state)
	return state
}

// Skip ends the tour from any step and disables auto-advance.
func (s *Session) Skip(ctx context.Context) tour.State {
	s.mu.Lock()
	from := s.state.CurrentStep
	s.state = tour.State{CurrentStep: tour.Finished, AutoAdvance: false}
	state, admin := s.state, s.admin
	s.mu.Unlock()

	s.track(from, telemetry.ActionSkipped)
	extra := s.hooks.skipped(ctx, s.event(from, tour.Finished, admin))

	s.persist(ctx, s.progress(state), extra)
	s.notify(state)
	return state
}

// StartOver re-enters the tour at its first step with auto-advance enabled.
func (s *Session) StartOver(ctx context.Context) tour.State {
	first := s.registry.FirstStep(s.category)

	s.mu.Lock()
	from := s.state.CurrentStep
	s.state = tour.State{CurrentStep: first, AutoAdvance: true}
	state, admin := s.state, s.admin
	s.mu.Unlock()

	extra := s.hooks.enter(ctx, s.event(from, first, admin))

	s.persist(ctx, s.progress(state), extra)
	s.notify(state)
	return state
}

// Reload re-reads progress from the store, notifying observers if it
// changed. Used when another process writes the same preferences.
func (s *Session) Reload() tour.State {
	loaded := s.read()

	s.mu.Lock()
	changed := loaded != s.state
	s.state = loaded
	s.mu.Unlock()

	if changed {
		s.notify(loaded)
	}
	return loaded
}

// Wait blocks until every in-flight preference write has finished.
func (s *Session) Wait() {
	s.writes.Wait()
}

// read derives state from the store. Missing values default to the first
// step with auto-advance enabled; unregistered steps reset to the first step.
func (s *Session) read() tour.State {
	state := tour.State{CurrentStep: s.registry.FirstStep(s.category), AutoAdvance: true}

	if v, ok := s.store.Get(string(s.category), s.userID); ok {
		step, err := tour.ParseStep(v)
		switch {
		case err != nil:
			s.logger.Warn("ignoring malformed step preference", zap.String("value", v))
		case step.IsFinished() || s.registry.Valid(s.category, step):
			state.CurrentStep = step
		default:
			s.logger.Warn("ignoring unregistered step preference", zap.Int("step", int(step)))
		}
	}

	auto := prefs.GetOr(s.store, s.registry.AutoTourStatus(s.category), s.userID, tour.AutoTourEnabled)
	state.AutoAdvance = tour.DecodeAutoTour(auto)
	return state
}

func (s *Session) event(from, to tour.Step, admin bool) Event {
	return Event{UserID: s.userID, Category: s.category, From: from, To: to, Admin: admin}
}

func (s *Session) track(step tour.Step, action telemetry.Action) {
	s.sink.Track(telemetry.Category, telemetry.Tag(s.telemetryTag, step, action))
}

func (s *Session) progress(state tour.State) []prefs.Preference {
	return []prefs.Preference{
		{Category: string(s.category), Name: s.userID, Value: state.CurrentStep.String()},
		s.autoPreference(state.AutoAdvance),
	}
}

func (s *Session) autoPreference(enabled bool) prefs.Preference {
	return prefs.Preference{
		Category: s.registry.AutoTourStatus(s.category),
		Name:     s.userID,
		Value:    tour.EncodeAutoTour(enabled),
	}
}

// persist writes batches in the background. Writes from successive
// transitions are applied in transition order.
func (s *Session) persist(ctx context.Context, batches ...[]prefs.Preference) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	prev := s.tail
	done := make(chan struct{})
	s.tail = done
	s.mu.Unlock()

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		for _, batch := range batches {
			if len(batch) == 0 {
				continue
			}
			if err := s.save(ctx, batch); err != nil {
				s.logger.Warn("failed to persist tour preferences",
					zap.Int("count", len(batch)),
					zap.Error(err),
				)
			}
		}
	}()
}

func (s *Session) save(ctx context.Context, batch []prefs.Preference) error {
	if s.maxRetries == 0 {
		return s.store.Save(ctx, s.userID, batch)
	}

	b := backoff.NewExponentialBackOff()
	if s.retryBackoff > 0 {
		b.InitialInterval = s.retryBackoff
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.store.Save(ctx, s.userID, batch)
		if errors.Is(err, prefs.ErrUserRequired) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.maxRetries+1),
	)
	return err
}

func (s *Session) notify(state tour.State) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if fn, ok := s.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
