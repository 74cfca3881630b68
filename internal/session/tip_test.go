package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/internal/geometry"
	"tourguide/internal/prefs"
	"tourguide/internal/tour"
)

// mapDOM is a concurrency-safe DOM stub.
type mapDOM struct {
	mu    sync.Mutex
	rects map[string]geometry.Rect
}

func (d *mapDOM) BoundingRect(id string) (geometry.Rect, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rects[id]
	return r, ok
}

func (d *mapDOM) set(id string, r geometry.Rect) {
	d.mu.Lock()
	d.rects[id] = r
	d.mu.Unlock()
}

func newTip(t *testing.T, s *Session, opts TipOptions) *Tip {
	t.Helper()
	tip := NewTip(context.Background(), s, opts)
	t.Cleanup(tip.Close)
	return tip
}

func TestDismissEvent_Tracked(t *testing.T) {
	tests := []struct {
		name  string
		event DismissEvent
		want  bool
	}{
		{"escape", DismissEvent{Kind: DismissEscape}, true},
		{"escape inside overlay", DismissEvent{Kind: DismissEscape, InsideOverlay: true}, true},
		{"outside click", DismissEvent{Kind: DismissClick, TargetID: "sidebar"}, true},
		{"inside click", DismissEvent{Kind: DismissClick, InsideOverlay: true}, false},
		{"prefilled message", DismissEvent{Kind: DismissClick, TargetID: PostTextboxID}, false},
		{"close button", DismissEvent{Kind: DismissButton}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Tracked())
		})
	}
}

func TestTip_AutoShowPolicy(t *testing.T) {
	tests := []struct {
		name    string
		stored  map[string]string
		step    tour.Step
		visible bool
	}{
		{"current step with auto", nil, 0, true},
		{"other step", nil, 1, false},
		{"auto disabled", map[string]string{"crt_tutorial_auto_tour_status": tour.AutoTourDisabled}, 0, false},
		{"finished", map[string]string{"crt_tutorial_step": "999"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := prefs.NewMemoryStore()
			for category, v := range tt.stored {
				store.Set(category, userID, v)
			}
			s, _ := newSession(t, tour.CRTTutorial, store)

			tip := newTip(t, s, TipOptions{Step: tt.step})
			assert.Equal(t, tt.visible, tip.Visible())
			assert.Equal(t, tt.visible, tip.HasShown())
		})
	}
}

func TestTip_ShowsWhenSessionReachesStep(t *testing.T) {
	s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())
	first := newTip(t, s, TipOptions{Step: 0})
	second := newTip(t, s, TipOptions{Step: 1})

	assert.True(t, first.Visible())
	assert.False(t, second.Visible())

	_, err := first.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Visible())
	assert.True(t, second.Visible())

	// Going back does not auto-show the first tip a second time.
	_, err = second.Previous(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Visible())
	assert.False(t, second.Visible())
}

func TestTip_PostPopoverDelay(t *testing.T) {
	s, _ := newSession(t, tour.Onboarding, prefs.NewMemoryStore())
	tip := newTip(t, s, TipOptions{Step: tour.StepPostPopover, PostPopoverDelay: 20 * time.Millisecond})

	assert.False(t, tip.Visible(), "post popover must wait before auto-showing")
	assert.Eventually(t, tip.Visible, time.Second, 5*time.Millisecond)
}

func TestTip_PostPopoverDelay_CancelledWhenNoLongerShowable(t *testing.T) {
	tests := []struct {
		name   string
		change func(ctx context.Context, s *Session)
	}{
		{"dismissed", func(ctx context.Context, s *Session) { s.Dismiss(ctx, true) }},
		{"advanced", func(ctx context.Context, s *Session) { _, _ = s.Next(ctx) }},
		{"skipped", func(ctx context.Context, s *Session) { s.Skip(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := newSession(t, tour.Onboarding, prefs.NewMemoryStore())
			tip := newTip(t, s, TipOptions{Step: tour.StepPostPopover, PostPopoverDelay: 30 * time.Millisecond})

			tt.change(ctx, s)
			s.Wait()

			assert.Never(t, tip.Visible, 100*time.Millisecond, 5*time.Millisecond)
			assert.False(t, tip.HasShown())
		})
	}
}

func TestTip_PostPopoverDelay_DismissedAndReopened(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, tour.Onboarding, prefs.NewMemoryStore())
	tip := newTip(t, s, TipOptions{Step: tour.StepPostPopover, PostPopoverDelay: 30 * time.Millisecond})

	s.Dismiss(ctx, false)
	s.StartOver(ctx)
	s.Wait()

	assert.True(t, s.State().AutoAdvance)
	assert.Eventually(t, tip.Visible, time.Second, 5*time.Millisecond)
}

func TestTip_FirstChannelNameShowsOnMount(t *testing.T) {
	store := prefs.NewMemoryStore()
	store.Set("crt_tutorial_auto_tour_status", userID, tour.AutoTourDisabled)
	s, _ := newSession(t, tour.CRTTutorial, store)

	tip := newTip(t, s, TipOptions{Step: 1, FirstChannelName: "town-square"})
	assert.True(t, tip.Visible(), "first channel shows regardless of step and auto flag")

	tip.Dismiss(context.Background(), DismissEvent{Kind: DismissButton})
	s.Wait()
	assert.False(t, tip.Visible(), "the forced show happens once per mount")
}

func TestTip_FirstChannelNameKeepsPostPopoverDelay(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, tour.Onboarding, prefs.NewMemoryStore())
	tip := newTip(t, s, TipOptions{
		Step:             tour.StepPostPopover,
		PostPopoverDelay: 20 * time.Millisecond,
		FirstChannelName: "town-square",
	})

	assert.False(t, tip.Visible())
	s.Dismiss(ctx, false)
	s.Wait()
	assert.Eventually(t, tip.Visible, time.Second, 5*time.Millisecond)
}

func TestTip_CloseCancelsPendingShow(t *testing.T) {
	s, _ := newSession(t, tour.Onboarding, prefs.NewMemoryStore())
	tip := NewTip(context.Background(), s, TipOptions{Step: tour.StepPostPopover, PostPopoverDelay: 10 * time.Millisecond})

	tip.Close()
	assert.Never(t, tip.HasShown, 50*time.Millisecond, 5*time.Millisecond)
	tip.Close()
}

func TestTip_NegativeDelayShowsImmediately(t *testing.T) {
	s, _ := newSession(t, tour.Onboarding, prefs.NewMemoryStore())
	tip := newTip(t, s, TipOptions{Step: tour.StepPostPopover, PostPopoverDelay: -1})
	assert.True(t, tip.Visible())
}

func TestTip_OpenAndDismiss(t *testing.T) {
	store := prefs.NewMemoryStore()
	store.Set("crt_tutorial_auto_tour_status", userID, tour.AutoTourDisabled)
	s, rec := newSession(t, tour.CRTTutorial, store)
	tip := newTip(t, s, TipOptions{Step: 0})

	require.False(t, tip.Visible())
	tip.Open()
	assert.True(t, tip.Visible())

	state := tip.Dismiss(context.Background(), DismissEvent{Kind: DismissClick, TargetID: PostTextboxID})
	assert.False(t, tip.Visible())
	assert.Equal(t, tour.State{CurrentStep: 0, AutoAdvance: false}, state)
	assert.Empty(t, rec.Tags())
}

func TestTip_HandleKey(t *testing.T) {
	s, rec := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())
	tip := newTip(t, s, TipOptions{Step: 0})

	consumed, err := tip.HandleKey(context.Background(), "enter")
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, tour.Step(1), s.State().CurrentStep)

	consumed, err = tip.HandleKey(context.Background(), "enter")
	require.NoError(t, err)
	assert.False(t, consumed, "hidden tips ignore keys")

	tip.Open()
	consumed, _ = tip.HandleKey(context.Background(), "esc")
	assert.True(t, consumed)
	assert.Equal(t, []string{"crt_tutorial_0--next", "crt_tutorial_1--dismiss"}, rec.Tags())
}

func TestTip_ViewLabels(t *testing.T) {
	tests := []struct {
		name   string
		opts   TipOptions
		want   string
		last   bool
		optOut bool
	}{
		{"first step", TipOptions{Step: 0}, LabelNext, false, true},
		{"last step", TipOptions{Step: 2}, LabelFinish, true, true},
		{"custom finish", TipOptions{Step: 2, FinishLabel: "Done"}, "Done", true, true},
		{"single tip", TipOptions{Step: 0, SingleTip: true}, LabelGotIt, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())
			v := newTip(t, s, tt.opts).View()

			assert.Equal(t, tt.want, v.ButtonLabel)
			assert.Equal(t, tt.last, v.IsLastStep)
			assert.Equal(t, tt.optOut, v.ShowOptOut)
			assert.Equal(t, tour.StepCRTUnread, v.LastStep)
			assert.Nil(t, v.Punchout)
		})
	}
}

func TestTip_ViewDotsAndPrevious(t *testing.T) {
	store := prefs.NewMemoryStore()
	store.Set(string(tour.Onboarding), userID, tour.StepChannelPopover.String())
	s, _ := newSession(t, tour.Onboarding, store)

	v := newTip(t, s, TipOptions{Step: tour.StepChannelPopover}).View()
	assert.True(t, v.Visible)
	assert.True(t, v.ShowPrevious)
	require.Len(t, v.Dots, 6, "negative and admin-only steps get no dot for members")
	assert.Equal(t, Dot{Step: tour.StepChannelPopover, Active: true}, v.Dots[1])

	s.SetAdmin(true)
	v = newTip(t, s, TipOptions{Step: tour.StepPostPopover}).View()
	assert.Len(t, v.Dots, 7)
	assert.Equal(t, tour.StepStartTrial, v.LastStep)
}

func TestTip_Punchout(t *testing.T) {
	dom := &mapDOM{rects: map[string]geometry.Rect{
		"a": {X: 10, Y: 10, Width: 20, Height: 20},
	}}
	s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())

	tip := newTip(t, s, TipOptions{
		Step:         0,
		DOM:          dom,
		PunchoutIDs:  []string{"a", "b"},
		Margin:       &geometry.Margin{X: -2, Y: -2, Width: 4, Height: 4},
		PollInterval: 2 * time.Millisecond,
	})

	assert.False(t, tip.Available())
	assert.Nil(t, tip.View().Punchout, "partial targets never produce a punch-out")

	dom.set("b", geometry.Rect{X: 50, Y: 50, Width: 10, Height: 10})
	select {
	case <-tip.Ready():
	case <-time.After(time.Second):
		t.Fatal("targets never became available")
	}

	p := tip.View().Punchout
	require.NotNil(t, p)
	assert.Equal(t, geometry.Rect{X: 8, Y: 8, Width: 54, Height: 54}, *p)
}

func TestTip_CloseStopsPolling(t *testing.T) {
	dom := &mapDOM{rects: map[string]geometry.Rect{}}
	s, _ := newSession(t, tour.CRTTutorial, prefs.NewMemoryStore())

	tip := NewTip(context.Background(), s, TipOptions{
		Step:         0,
		DOM:          dom,
		PunchoutIDs:  []string{"never"},
		PollInterval: time.Millisecond,
	})
	tip.Close()

	assert.False(t, tip.Visible())
	assert.False(t, tip.Available())
}
