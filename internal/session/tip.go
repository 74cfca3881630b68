package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourguide/internal/geometry"
	"tourguide/internal/poller"
	"tourguide/internal/tour"
)

// PostPopoverDelay is how long the onboarding post popover waits before
// auto-showing, giving the tips-and-next-steps panel the first chance to
// claim the screen.
const PostPopoverDelay = 150 * time.Millisecond

// PostTextboxID is the element id of the message box. Clicking it picks a
// prefilled message, which does not count as a dismissal.
const PostTextboxID = "post_textbox"

// Button labels.
const (
	LabelNext   = "Next"
	LabelFinish = "Finish tour"
	LabelGotIt  = "Got it"
)

// DismissKind is the interaction that dismissed a tip.
type DismissKind int

const (
	// DismissEscape is the escape key.
	DismissEscape DismissKind = iota
	// DismissClick is a click, classified by where it landed.
	DismissClick
	// DismissButton is the tip's own close button.
	DismissButton
)

// DismissEvent describes a dismissal.
type DismissEvent struct {
	Kind DismissKind

	// InsideOverlay reports whether the click landed inside the tip's
	// overlay subtree.
	InsideOverlay bool

	// TargetID is the element id of the click target.
	TargetID string
}

// Tracked reports whether the dismissal is a genuine outside interaction.
// Escape always counts; a click counts only outside the overlay and not on
// the message box.
func (e DismissEvent) Tracked() bool {
	switch e.Kind {
	case DismissEscape:
		return true
	case DismissClick:
		return !e.InsideOverlay && e.TargetID != PostTextboxID
	default:
		return false
	}
}

// TipOptions configures a [Tip].
type TipOptions struct {
	// Step is the step this view renders.
	Step tour.Step

	// DOM resolves punch-out targets. Nil disables the punch-out.
	DOM geometry.DOM

	// PunchoutIDs are the elements kept visible through the overlay.
	PunchoutIDs []string

	// Margin adjusts the punch-out rectangle.
	Margin *geometry.Margin

	// PollInterval is the element availability re-check interval.
	// Defaults to [poller.DefaultInterval].
	PollInterval time.Duration

	// PostPopoverDelay overrides [PostPopoverDelay]. Negative shows at once.
	PostPopoverDelay time.Duration

	// FinishLabel replaces [LabelFinish] on the last step.
	FinishLabel string

	// SingleTip marks a one-off tip outside a multi-step tour.
	SingleTip bool

	// FirstChannelName is the channel created during workspace setup. When
	// set, the tip shows once on mount whatever the step and auto flag.
	FirstChannelName string

	Logger *zap.Logger
}

// Dot is one step indicator in the tip footer.
type Dot struct {
	Step   tour.Step
	Active bool
}

// View is the read-only snapshot a renderer draws a tip from.
type View struct {
	ID          string
	Category    tour.Category
	Visible     bool
	CurrentStep tour.Step
	Step        tour.Step
	LastStep    tour.Step
	IsLastStep  bool

	// Punchout is nil while targets are missing or when none are set.
	Punchout *geometry.Rect

	ButtonLabel  string
	ShowPrevious bool
	ShowOptOut   bool
	Dots         []Dot
}

// Tip is the presentation manager of one mounted view of a step.
//
// Its auto-show bookkeeping lives and dies with the instance; create one
// per mount with [NewTip] and tear it down with [Tip.Close].
type Tip struct {
	id      string
	session *Session
	opts    TipOptions
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	avail  *poller.Availability
	calc   *geometry.Calculator
	unsub  func()

	mu       sync.Mutex
	visible  bool
	hasShown bool
	closed   bool
	timer    *time.Timer
	forced   bool
	last     tour.State
}

// NewTip mounts a tip for session and evaluates the auto-show policy.
func NewTip(ctx context.Context, s *Session, opts TipOptions) *Tip {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tip{
		id:      uuid.NewString(),
		session: s,
		opts:    opts,
		calc:    geometry.NewCalculator(opts.PunchoutIDs, opts.Margin),
	}
	t.logger = logger.With(zap.String("tip", t.id), zap.Int("step", int(opts.Step)))
	t.ctx, t.cancel = context.WithCancel(ctx)

	if opts.DOM != nil && len(opts.PunchoutIDs) > 0 {
		t.avail = poller.Await(t.ctx, opts.DOM, opts.PunchoutIDs, opts.PollInterval)
	}

	t.mu.Lock()
	t.last = s.State()
	t.mu.Unlock()

	t.unsub = s.Subscribe(t.onState)
	t.autoShow(t.last, opts.FirstChannelName != "")
	return t
}

// ID returns the mount id used to correlate log lines.
func (t *Tip) ID() string { return t.id }

// Open shows the tip on demand.
func (t *Tip) Open() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.visible = true
	t.hasShown = true
}

// Next hides the tip and advances the tour.
func (t *Tip) Next(ctx context.Context) (tour.State, error) {
	t.hide()
	return t.session.Next(ctx)
}

// Previous hides the tip and moves the tour back.
func (t *Tip) Previous(ctx context.Context) (tour.State, error) {
	t.hide()
	return t.session.Previous(ctx)
}

// Jump hides the tip and moves the tour to step.
func (t *Tip) Jump(ctx context.Context, step tour.Step) (tour.State, error) {
	t.hide()
	return t.session.Jump(ctx, step)
}

// Skip hides the tip and ends the tour.
func (t *Tip) Skip(ctx context.Context) tour.State {
	t.hide()
	return t.session.Skip(ctx)
}

// Dismiss hides the tip and disables auto-advance.
func (t *Tip) Dismiss(ctx context.Context, e DismissEvent) tour.State {
	t.hide()
	return t.session.Dismiss(ctx, e.Tracked())
}

// HandleKey reacts to a key press: Enter advances and Escape dismisses
// while the tip is visible. Reports whether the key was consumed.
func (t *Tip) HandleKey(ctx context.Context, key string) (bool, error) {
	if !t.Visible() {
		return false, nil
	}
	switch key {
	case "enter", "Enter":
		_, err := t.Next(ctx)
		return true, err
	case "esc", "Escape":
		t.Dismiss(ctx, DismissEvent{Kind: DismissEscape})
		return true, nil
	}
	return false, nil
}

// Visible reports whether the tip is shown.
func (t *Tip) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// HasShown reports whether the tip has been shown in this mount.
func (t *Tip) HasShown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasShown
}

// View returns the current presentation snapshot.
func (t *Tip) View() View {
	state := t.session.State()
	reg := t.session.Registry()
	category := t.session.Category()
	admin := t.session.Admin()
	last := reg.LastStepFor(category, admin)

	t.mu.Lock()
	visible := t.visible
	t.mu.Unlock()

	v := View{
		ID:          t.id,
		Category:    category,
		Visible:     visible,
		CurrentStep: state.CurrentStep,
		Step:        t.opts.Step,
		LastStep:    last,
		IsLastStep:  t.opts.Step == last,
		ShowOptOut:  !t.opts.SingleTip,
	}

	switch {
	case t.opts.SingleTip:
		v.ButtonLabel = LabelGotIt
	case v.IsLastStep && t.opts.FinishLabel != "":
		v.ButtonLabel = t.opts.FinishLabel
	case v.IsLastStep:
		v.ButtonLabel = LabelFinish
	default:
		v.ButtonLabel = LabelNext
	}

	if !t.opts.SingleTip {
		v.ShowPrevious = state.CurrentStep != reg.FirstStep(category) && !state.CurrentStep.IsFinished()
		steps, _ := reg.Steps(category)
		for _, s := range steps {
			if s.Step < 0 || (s.AdminOnly && !admin) {
				continue
			}
			v.Dots = append(v.Dots, Dot{Step: s.Step, Active: s.Step == state.CurrentStep})
		}
	}

	if r, ok := t.punchout(); ok {
		v.Punchout = &r
	}
	return v
}

// Available reports whether every punch-out target is present. Tips with
// no targets are always available.
func (t *Tip) Available() bool {
	if t.avail == nil {
		return true
	}
	return t.avail.Available()
}

// Ready is closed once the punch-out targets are available.
func (t *Tip) Ready() <-chan struct{} {
	if t.avail == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.avail.Ready()
}

// Relayout discards the memoised punch-out after the layout changed.
func (t *Tip) Relayout() {
	t.calc.Invalidate()
}

// Close tears the tip down: the pending show timer is cancelled, the
// poller stopped and the session subscription removed. Safe to call more
// than once.
func (t *Tip) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.visible = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.unsub()
	t.cancel()
	if t.avail != nil {
		t.avail.Stop()
	}
}

func (t *Tip) punchout() (geometry.Rect, bool) {
	if t.opts.DOM == nil || len(t.opts.PunchoutIDs) == 0 {
		return geometry.Rect{}, false
	}
	return t.calc.Punchout(t.opts.DOM, t.Available())
}

func (t *Tip) hide() {
	t.mu.Lock()
	t.visible = false
	t.mu.Unlock()
}

// onState re-evaluates auto-show when the step or the auto flag changed.
func (t *Tip) onState(state tour.State) {
	t.mu.Lock()
	changed := state != t.last
	t.last = state
	if state.CurrentStep != t.opts.Step {
		t.visible = false
	}
	if t.timer != nil && !t.forced && !t.qualifies(state) {
		t.timer.Stop()
		t.timer = nil
		t.logger.Debug("cancelled deferred auto-show")
	}
	t.mu.Unlock()

	if changed {
		t.autoShow(state, false)
	}
}

// autoShow shows the tip if state qualifies. force skips the policy, once.
func (t *Tip) autoShow(state tour.State, force bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.timer != nil {
		return
	}
	if !force && (t.hasShown || !t.qualifies(state)) {
		return
	}

	delay := t.showDelay()
	if delay <= 0 {
		t.show()
		return
	}
	t.logger.Debug("deferring auto-show", zap.Duration("delay", delay))
	t.forced = force
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.timer = nil
		if t.closed {
			return
		}
		if !t.forced && (t.hasShown || !t.qualifies(t.last)) {
			return
		}
		t.forced = false
		t.show()
	})
}

// qualifies reports whether state allows this tip to show itself.
func (t *Tip) qualifies(state tour.State) bool {
	return state.AutoAdvance && state.CurrentStep == t.opts.Step
}

// show must be called with t.mu held.
func (t *Tip) show() {
	t.visible = true
	t.hasShown = true
	t.logger.Debug("auto-showing tip")
}

func (t *Tip) showDelay() time.Duration {
	if t.session.Category() != tour.Onboarding || t.opts.Step != tour.StepPostPopover {
		return 0
	}
	if t.opts.PostPopoverDelay != 0 {
		return t.opts.PostPopoverDelay
	}
	return PostPopoverDelay
}
