package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tourguide/internal/prefs"
)

func newPrefsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prefs",
		Short: "List the stored preferences of the user",
		Long: `List every preference the configured store holds for the current user,
ordered by category and name.

Example:
  tourguide prefs --user alice --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lister, ok := app.Store.(prefs.Lister)
			if !ok {
				return fmt.Errorf("store %T cannot list preferences", app.Store)
			}
			list, err := lister.List(cmd.Context())
			if err != nil {
				return err
			}
			return app.Printer.Preferences(list)
		},
	}
}
