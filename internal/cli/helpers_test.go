package cli

import (
	"bytes"
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"tourguide/internal/config"
	"tourguide/internal/output"
	"tourguide/internal/prefs"
	"tourguide/internal/telemetry"
	"tourguide/internal/tui"
)

// MockPlayer feeds scripted keys to the model instead of running a
// terminal program.
type MockPlayer struct {
	// Keys are sent to the model in order.
	Keys []tea.KeyMsg
	// Views records the rendered view after every key.
	Views []string
	// Played counts Play calls.
	Played int
}

func (p *MockPlayer) Play(ctx context.Context, m *tui.Model) error {
	p.Played++
	m.Init()
	for _, k := range p.Keys {
		m.Update(k)
		p.Views = append(p.Views, m.View())
	}
	return nil
}

// testEnv bundles an App wired with in-memory dependencies.
type testEnv struct {
	App      *App
	Store    *prefs.MemoryStore
	Recorder *telemetry.Recorder
	Out      *bytes.Buffer
	Player   *MockPlayer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		Store:    prefs.NewMemoryStore(),
		Recorder: &telemetry.Recorder{},
		Out:      &bytes.Buffer{},
		Player:   &MockPlayer{},
	}
	env.App = &App{
		Config:    config.DefaultConfig(),
		Store:     env.Store,
		Telemetry: env.Recorder,
		Logger:    zap.NewNop(),
		Printer:   output.NewPrinterWithWriter(env.Out),
		Player:    env.Player,
	}
	return env
}

// run executes the root command with args.
func (e *testEnv) run(args ...string) error {
	rootCmd := NewRootCommand(e.App)
	rootCmd.SetOut(e.Out)
	rootCmd.SetErr(e.Out)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}
