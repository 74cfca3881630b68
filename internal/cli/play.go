package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tourguide/internal/layout"
	"tourguide/internal/prefs"
	"tourguide/internal/session"
	"tourguide/internal/tui"
)

// Player runs an interactive tour model until the user quits.
type Player interface {
	Play(ctx context.Context, m *tui.Model) error
}

type teaPlayer struct{}

func (teaPlayer) Play(ctx context.Context, m *tui.Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}

func newPlayCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "play <layout>",
		Short: "Play the tour interactively",
		Long: `Play the selected tour in the terminal against a layout snapshot.

The layout's targets section maps step names to the element ids each tip
highlights. With store.watch enabled, progress written by another process
is picked up while playing.

Example:
  tourguide play layout.yaml --category crt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dom, err := layout.Load(args[0])
			if err != nil {
				return err
			}

			s, err := app.Session()
			if err != nil {
				return err
			}
			defer s.Wait()

			if app.Config.Store.Watch {
				fs, ok := app.Store.(*prefs.FileStore)
				if !ok {
					return fmt.Errorf("store.watch requires a file store")
				}
				w, err := prefs.Watch(ctx, fs.Path(), func() { s.Reload() },
					prefs.WithWatchError(func(err error) {
						app.Logger.Warn("preference watch failed", zap.Error(err))
					}))
				if err != nil {
					return err
				}
				defer w.Close()
			}

			delay := app.Config.Tour.PostPopoverDelay
			if delay == 0 {
				delay = -1
			}
			m := tui.New(ctx, s, dom, tui.Options{
				PollInterval:     app.Config.Tour.PollInterval,
				PostPopoverDelay: delay,
				FirstChannelName: prefs.GetOr(app.Store, session.ABTestCategory, session.ABCreateFirstChannel, ""),
				Logger:           app.Logger,
			})
			defer m.Close()

			return app.Player.Play(ctx, m)
		},
	}
}
