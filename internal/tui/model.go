// Package tui plays a tour in the terminal.
//
// [Model] is a bubbletea model that mounts a [session.Tip] for the current
// step of a session against a [layout.Snapshot], remounting whenever the
// step changes. The viewport is drawn as a scaled character map with the
// punch-out highlighted, and the tip card below it.
//
// Key types:
//   - [Model] is the bubbletea model
//   - [Options] configures timing and rendering
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"tourguide/internal/geometry"
	"tourguide/internal/layout"
	"tourguide/internal/session"
	"tourguide/internal/tour"
)

// refreshInterval is how often the view is redrawn to pick up deferred
// shows and elements that appear later.
const refreshInterval = 100 * time.Millisecond

// reservedRows is the height kept free below the map for the title, the
// tip card and the help line.
const reservedRows = 10

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	cardStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#2196F3")).Padding(0, 1)
	mapStyle      = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#616161"))
	holeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#616161"))
	activeDot     = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).Render("●")
	inactiveDot   = dimStyle.Render("○")
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9E9E9E"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
	finishedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
)

// Options configures a [Model].
type Options struct {
	// Margin adjusts every punch-out rectangle.
	Margin *geometry.Margin

	PollInterval     time.Duration
	PostPopoverDelay time.Duration

	// MapWidth and MapHeight size the viewport map in cells. Zero values
	// default to 48 by 12 and follow the terminal size once it is known.
	MapWidth  int
	MapHeight int

	// FirstChannelName forces the first mounted tip to show.
	FirstChannelName string

	Logger *zap.Logger
}

type tickMsg time.Time

// Model is the bubbletea model of a terminal tour.
type Model struct {
	ctx     context.Context
	session *session.Session
	dom     *layout.Snapshot
	opts    Options

	fixedWidth  bool
	fixedHeight bool

	tip  *session.Tip
	step tour.Step
	err  error
	quit bool
}

// New returns a model playing s against dom and mounts the tip of the
// current step.
func New(ctx context.Context, s *session.Session, dom *layout.Snapshot, opts Options) *Model {
	m := &Model{ctx: ctx, session: s, dom: dom, fixedWidth: opts.MapWidth > 0, fixedHeight: opts.MapHeight > 0}
	if opts.MapWidth <= 0 {
		opts.MapWidth = 48
	}
	if opts.MapHeight <= 0 {
		opts.MapHeight = 12
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	m.opts = opts
	m.mount()
	return m
}

// Init starts the refresh ticker.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles key presses and refresh ticks.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.sync()
		return m, tick()
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case tea.KeyMsg:
		if cmd := m.handleKey(msg.String()); cmd != nil {
			return m, cmd
		}
		m.sync()
	}
	return m, nil
}

func (m *Model) handleKey(key string) tea.Cmd {
	m.err = nil
	switch key {
	case "q", "ctrl+c":
		m.Close()
		m.quit = true
		return tea.Quit
	case "enter", "esc":
		if m.tip == nil {
			return nil
		}
		if _, err := m.tip.HandleKey(m.ctx, key); err != nil {
			m.err = err
		}
	case "right", "n":
		m.do(func(t *session.Tip) error { _, err := t.Next(m.ctx); return err })
	case "left", "p":
		m.do(func(t *session.Tip) error { _, err := t.Previous(m.ctx); return err })
	case "s":
		m.do(func(t *session.Tip) error { t.Skip(m.ctx); return nil })
	case "o":
		m.do(func(t *session.Tip) error { t.Open(); return nil })
	case "r":
		m.session.StartOver(m.ctx)
	}
	return nil
}

func (m *Model) do(fn func(*session.Tip) error) {
	if m.tip == nil {
		return
	}
	if err := fn(m.tip); err != nil {
		m.err = err
	}
}

// resize fits the map into a terminal of w by h cells, leaving room for
// the card and the help line, and discards the memoised punch-out.
func (m *Model) resize(w, h int) {
	if w > 2 && !m.fixedWidth {
		m.opts.MapWidth = w - 2
	}
	if h > reservedRows+2 && !m.fixedHeight {
		m.opts.MapHeight = h - reservedRows - 2
	}
	if m.tip != nil {
		m.tip.Relayout()
	}
}

// sync remounts the tip once the session moved to another step.
func (m *Model) sync() {
	if m.session.State().CurrentStep != m.step || m.tip == nil {
		m.mount()
	}
}

func (m *Model) mount() {
	if m.tip != nil {
		m.tip.Close()
		m.tip = nil
	}
	state := m.session.State()
	m.step = state.CurrentStep
	if state.CurrentStep.IsFinished() {
		return
	}

	opts := session.TipOptions{
		Step:             state.CurrentStep,
		Margin:           m.opts.Margin,
		PollInterval:     m.opts.PollInterval,
		PostPopoverDelay: m.opts.PostPopoverDelay,
		FirstChannelName: m.opts.FirstChannelName,
		Logger:           m.opts.Logger,
	}
	m.opts.FirstChannelName = ""
	if m.dom != nil {
		opts.DOM = m.dom
		if def, ok := m.session.Registry().Lookup(m.session.Category(), state.CurrentStep); ok {
			opts.PunchoutIDs = m.dom.Targets(def.Name)
		}
	}
	m.tip = session.NewTip(m.ctx, m.session, opts)
}

// Tip returns the mounted tip, nil once the tour finished.
func (m *Model) Tip() *session.Tip { return m.tip }

// Quitting reports whether the user asked to quit.
func (m *Model) Quitting() bool { return m.quit }

// Close unmounts the tip.
func (m *Model) Close() {
	if m.tip != nil {
		m.tip.Close()
		m.tip = nil
	}
}

// View renders the viewport map, the tip card and the key help.
func (m *Model) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("tour: "+string(m.session.Category())) + "\n")

	if m.tip == nil {
		b.WriteString(finishedStyle.Render("Tour finished.") + "\n")
		b.WriteString(helpStyle.Render("r start over • q quit") + "\n")
		return b.String()
	}

	v := m.tip.View()
	b.WriteString(m.renderMap(v.Punchout) + "\n")
	b.WriteString(m.renderCard(v) + "\n")
	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString(helpStyle.Render("enter/→ next • ← previous • esc dismiss • s skip • o open • r start over • q quit") + "\n")
	return b.String()
}

func (m *Model) renderCard(v session.View) string {
	name := v.Step.String()
	if def, ok := m.session.Registry().Lookup(v.Category, v.Step); ok {
		name = def.Name
	}
	if !v.Visible {
		return dimStyle.Render(fmt.Sprintf("[%s hidden - press o to open]", name))
	}

	var dots []string
	for _, d := range v.Dots {
		if d.Active {
			dots = append(dots, activeDot)
		} else {
			dots = append(dots, inactiveDot)
		}
	}

	buttons := "[" + v.ButtonLabel + "]"
	if v.ShowPrevious {
		buttons = "[Previous] " + buttons
	}
	lines := []string{titleStyle.Render(name)}
	if len(dots) > 0 {
		lines = append(lines, strings.Join(dots, " "))
	}
	if v.Punchout == nil {
		lines = append(lines, dimStyle.Render("waiting for target elements"))
	}
	lines = append(lines, buttons)
	if v.ShowOptOut {
		lines = append(lines, dimStyle.Render("Skip tips (s)"))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

// renderMap draws the viewport scaled into MapWidth by MapHeight cells.
func (m *Model) renderMap(hole *geometry.Rect) string {
	w, h := m.opts.MapWidth, m.opts.MapHeight
	var vp geometry.Rect
	if m.dom != nil {
		vp = m.dom.Viewport()
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		vp.Width, vp.Height = float64(w), float64(h)
	}
	sx, sy := vp.Width/float64(w), vp.Height/float64(h)

	rows := make([]string, h)
	for y := 0; y < h; y++ {
		var row strings.Builder
		for x := 0; x < w; x++ {
			if hole != nil && covers(*hole, float64(x)*sx, float64(y)*sy, sx, sy) {
				row.WriteString(holeStyle.Render("█"))
			} else {
				row.WriteString(dimStyle.Render("·"))
			}
		}
		rows[y] = row.String()
	}
	return mapStyle.Render(strings.Join(rows, "\n"))
}

// covers reports whether r overlaps the cell at (x, y) of size w by h.
func covers(r geometry.Rect, x, y, w, h float64) bool {
	return math.Max(r.X, x) < math.Min(r.Right(), x+w) &&
		math.Max(r.Y, y) < math.Min(r.Bottom(), y+h)
}
