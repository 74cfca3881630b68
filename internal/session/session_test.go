package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tourguide/internal/prefs"
	"tourguide/internal/telemetry"
	"tourguide/internal/tour"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const userID = "u1"

func newSession(t *testing.T, c tour.Category, store prefs.Store) (*Session, *telemetry.Recorder) {
	t.Helper()
	s, err := New(userID, c, tour.DefaultRegistry(), store)
	require.NoError(t, err)
	rec := &telemetry.Recorder{}
	s.SetTelemetry(rec)
	s.SetHooks(DefaultHooks())
	t.Cleanup(s.Wait)
	return s, rec
}

// flakyStore fails the first n saves.
type flakyStore struct {
	*prefs.MemoryStore
	failures atomic.Int32
	attempts atomic.Int32
}

func (f *flakyStore) Save(ctx context.Context, userID string, p []prefs.Preference) error {
	f.attempts.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("store offline")
	}
	return f.MemoryStore.Save(ctx, userID, p)
}

func TestNew_Defaults(t *testing.T) {
	s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())

	assert.Equal(t, tour.State{CurrentStep: 0, AutoAdvance: true}, s.State())
	assert.Equal(t, tour.StepCRTUnread, s.LastStep())
	assert.Equal(t, "crt_tutorial", DefaultTelemetryTag(tour.CRTTutorial))
}

func TestNew_UnknownCategory(t *testing.T) {
	_, err := New(userID, "nope", tour.DefaultRegistry(), prefs.NewMemoryStore())
	assert.ErrorIs(t, err, tour.ErrUnknownCategory)
}

func TestNew_LoadsStoredState(t *testing.T) {
	tests := []struct {
		name string
		step string
		auto string
		want tour.State
	}{
		{"stored step and disabled auto", "2", tour.AutoTourDisabled, tour.State{CurrentStep: 2}},
		{"finished", "999", tour.AutoTourEnabled, tour.State{CurrentStep: tour.Finished, AutoAdvance: true}},
		{"malformed step", "two", "", tour.State{CurrentStep: 0, AutoAdvance: true}},
		{"unregistered step", "7", "", tour.State{CurrentStep: 0, AutoAdvance: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := prefs.NewMemoryStore()
			store.Set(string(tour.CRTTutorial), userID, tt.step)
			if tt.auto != "" {
				store.Set("crt_tutorial_auto_tour_status", userID, tt.auto)
			}

			s, _ := newSession(t, tour.CRTTutorial, store)
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestNext_WalksToFinished(t *testing.T) {
	store := prefs.NewMemoryStore()
	s, rec := newSession(t, tour.CRTTutorial, store)
	ctx := context.Background()

	for _, want := range []tour.Step{1, 2, tour.Finished} {
		state, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, state.CurrentStep)
		assert.True(t, state.AutoAdvance, "next must not touch auto-advance")
	}

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrTourFinished)
	_, err = s.Previous(ctx)
	assert.ErrorIs(t, err, ErrTourFinished)

	s.Wait()
	assert.Equal(t, []string{
		"crt_tutorial_0--next",
		"crt_tutorial_1--next",
		"crt_tutorial_2--next",
	}, rec.Tags())

	saves := store.Saves()
	require.Len(t, saves, 3)
	assert.Equal(t, []prefs.Preference{
		{UserID: userID, Category: "crt_tutorial_step", Name: userID, Value: "999"},
		{UserID: userID, Category: "crt_tutorial_auto_tour_status", Name: userID, Value: "0"},
	}, saves[2])
	assert.Equal(t, "999", prefs.GetOr(store, "crt_tutorial_step", userID, ""))
}

func TestNext_AdminOnlySteps(t *testing.T) {
	tests := []struct {
		name     string
		admin    bool
		want     []tour.Step
		taskList bool
	}{
		{"member skips start trial", false, []tour.Step{tour.Finished}, false},
		{"admin sees start trial", true, []tour.Step{tour.StepStartTrial, tour.Finished}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := prefs.NewMemoryStore()
			store.Set(string(tour.Onboarding), userID, tour.StepSettings.String())
			s, _ := newSession(t, tour.Onboarding, store)
			s.SetAdmin(tt.admin)

			for _, want := range tt.want {
				state, err := s.Next(context.Background())
				require.NoError(t, err)
				assert.Equal(t, want, state.CurrentStep)
			}
			s.Wait()

			v, ok := store.Get(TaskListCategory, TaskListOpen)
			assert.Equal(t, tt.taskList, ok)
			if tt.taskList {
				assert.Equal(t, "true", v)
			}
		})
	}
}

func TestPrevious(t *testing.T) {
	store := prefs.NewMemoryStore()
	s, rec := newSession(t, tour.Onboarding, store)
	ctx := context.Background()

	state, err := s.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, tour.StepPostPopover, state.CurrentStep, "previous at 0 must not reach a negative step")

	_, err = s.Jump(ctx, tour.StepMenuPopover)
	require.NoError(t, err)
	rec.Reset()

	state, err = s.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, tour.StepAddChannelPopover, state.CurrentStep)
	assert.Equal(t, []string{"tutorial_3--prev"}, rec.Tags())

	s.Wait()
	assert.Len(t, store.Saves(), 2, "no-op previous must not persist")
}

func TestJump(t *testing.T) {
	store := prefs.NewMemoryStore()
	s, rec := newSession(t, tour.Onboarding, store)
	ctx := context.Background()

	_, err := s.Jump(ctx, 42)
	assert.ErrorIs(t, err, ErrInvalidStep)
	_, err = s.Jump(ctx, tour.Finished)
	assert.ErrorIs(t, err, ErrInvalidStep)
	assert.Equal(t, tour.StepPostPopover, s.State().CurrentStep)

	s.Skip(ctx)
	state, err := s.Jump(ctx, tour.StepAddFirstChannel)
	require.NoError(t, err, "jump may re-enter a finished tour")
	assert.Equal(t, tour.StepAddFirstChannel, state.CurrentStep)
	assert.False(t, state.AutoAdvance, "jump leaves auto-advance unchanged")
	assert.Contains(t, rec.Tags(), "tutorial_-1--jump")

	// Leaving ADD_FIRST_CHANNEL clears the A/B preference.
	state, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, tour.StepPostPopover, state.CurrentStep)

	s.Wait()
	v, ok := store.Get(ABTestCategory, ABCreateFirstChannel)
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestDismiss(t *testing.T) {
	for _, tracked := range []bool{true, false} {
		store := prefs.NewMemoryStore()
		store.Set(string(tour.CRTTutorial), userID, "1")
		s, rec := newSession(t, tour.CRTTutorial, store)

		state := s.Dismiss(context.Background(), tracked)
		assert.Equal(t, tour.State{CurrentStep: 1, AutoAdvance: false}, state)

		s.Wait()
		saves := store.Saves()
		require.Len(t, saves, 1)
		assert.Equal(t, []prefs.Preference{
			{UserID: userID, Category: "crt_tutorial_auto_tour_status", Name: userID, Value: "1"},
		}, saves[0], "dismiss persists only the auto flag")

		if tracked {
			assert.Equal(t, []string{"crt_tutorial_1--dismiss"}, rec.Tags())
		} else {
			assert.Empty(t, rec.Tags())
		}
	}
}

func TestSkip_FromAnyStep(t *testing.T) {
	for _, from := range []tour.Step{0, 1, 2, tour.Finished} {
		t.Run(from.String(), func(t *testing.T) {
			store := prefs.NewMemoryStore()
			store.Set(string(tour.CRTTutorial), userID, from.String())
			s, rec := newSession(t, tour.CRTTutorial, store)

			var skipped []Event
			hooks := DefaultHooks()
			hooks.OnSkip(tour.CRTTutorial, func(_ context.Context, e Event) []prefs.Preference {
				skipped = append(skipped, e)
				return nil
			})
			s.SetHooks(hooks)

			state := s.Skip(context.Background())
			assert.Equal(t, tour.State{CurrentStep: tour.Finished, AutoAdvance: false}, state)
			assert.Equal(t, []string{telemetry.Tag("crt_tutorial", from, telemetry.ActionSkipped)}, rec.Tags())
			require.Len(t, skipped, 1)
			assert.Equal(t, from, skipped[0].From)

			s.Wait()
			assert.Equal(t, "999", prefs.GetOr(store, "crt_tutorial_step", userID, ""))
			assert.Equal(t, tour.AutoTourDisabled, prefs.GetOr(store, "crt_tutorial_auto_tour_status", userID, ""))
		})
	}
}

func TestStartOver(t *testing.T) {
	store := prefs.NewMemoryStore()
	s, _ := newSession(t, tour.CRTTutorial, store)

	s.Skip(context.Background())
	state := s.StartOver(context.Background())
	assert.Equal(t, tour.State{CurrentStep: 0, AutoAdvance: true}, state)

	s.Wait()
	assert.Equal(t, "0", prefs.GetOr(store, "crt_tutorial_step", userID, ""))
	assert.Equal(t, tour.AutoTourEnabled, prefs.GetOr(store, "crt_tutorial_auto_tour_status", userID, ""))
}

func TestHooks_EnterLeaveOrder(t *testing.T) {
	var calls []string
	record := func(name string) HookFunc {
		return func(_ context.Context, e Event) []prefs.Preference {
			calls = append(calls, name)
			return nil
		}
	}

	hooks := NewHooks()
	hooks.Register(tour.CRTTutorial, 0, Handler{OnLeave: record("leave0"), OnEnter: record("enter0")})
	hooks.Register(tour.CRTTutorial, 1, Handler{OnLeave: record("leave1"), OnEnter: record("enter1")})
	hooks.OnFinish(tour.CRTTutorial, record("finish"))

	s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())
	s.SetHooks(hooks)
	ctx := context.Background()

	_, _ = s.Next(ctx)
	_, _ = s.Previous(ctx)
	_, _ = s.Jump(ctx, 1)
	_, _ = s.Jump(ctx, 2)
	_, _ = s.Next(ctx)

	assert.Equal(t, []string{"leave0", "enter1", "leave1", "enter0", "enter1", "finish"}, calls)
}

func TestPersist_FailureDoesNotRollBack(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := prefs.NewMemoryStore()
	store.FailWith(errors.New("store offline"))

	s, _ := newSession(t, tour.CRTTutorial, store)
	s.SetLogger(zap.New(core))

	state, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tour.Step(1), state.CurrentStep)
	s.Wait()

	assert.Equal(t, tour.Step(1), s.State().CurrentStep)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to persist tour preferences", logs.All()[0].Message)
}

func TestPersist_RetriesWithBackoff(t *testing.T) {
	store := &flakyStore{MemoryStore: prefs.NewMemoryStore()}
	store.failures.Store(2)

	s, _ := newSession(t, tour.CRTTutorial, store)
	s.SetRetry(3, time.Millisecond)

	_, err := s.Next(context.Background())
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, int32(3), store.attempts.Load())
	assert.Equal(t, "1", prefs.GetOr(store, "crt_tutorial_step", userID, ""))
}

func TestPersist_OrderedAcrossTransitions(t *testing.T) {
	store := prefs.NewMemoryStore()
	s, _ := newSession(t, tour.CRTTutorial, store)
	ctx := context.Background()

	_, _ = s.Next(ctx)
	_, _ = s.Next(ctx)
	_, _ = s.Previous(ctx)
	s.Wait()

	var steps []string
	for _, batch := range store.Saves() {
		steps = append(steps, batch[0].Value)
	}
	assert.Equal(t, []string{"1", "2", "1"}, steps)
}

func TestTelemetry_PanicDoesNotBlockTransition(t *testing.T) {
	s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())
	s.SetTelemetry(telemetry.SinkFunc(func(string, string) { panic("sink down") }))

	state, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tour.Step(1), state.CurrentStep)
}

func TestSubscribe(t *testing.T) {
	s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())

	var mu sync.Mutex
	var seen []tour.State
	unsubscribe := s.Subscribe(func(st tour.State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	_, _ = s.Next(context.Background())
	s.Dismiss(context.Background(), false)
	unsubscribe()
	unsubscribe()
	_, _ = s.Next(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []tour.State{
		{CurrentStep: 1, AutoAdvance: true},
		{CurrentStep: 1, AutoAdvance: false},
	}, seen)
}

func TestReload(t *testing.T) {
	store := prefs.NewMemoryStore()
	s, _ := newSession(t, tour.CRTTutorial, store)

	var calls atomic.Int32
	defer s.Subscribe(func(tour.State) { calls.Add(1) })()

	s.Reload()
	assert.Zero(t, calls.Load(), "unchanged reload must not notify")

	store.Set("crt_tutorial_step", userID, "2")
	assert.Equal(t, tour.Step(2), s.Reload().CurrentStep)
	assert.Equal(t, int32(1), calls.Load())
}
