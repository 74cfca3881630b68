package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tourguide/internal/geometry"
	"tourguide/internal/layout"
)

func newBoundsCommand(app *App) *cobra.Command {
	var margin []float64
	cmd := &cobra.Command{
		Use:   "bounds <layout> [element-id...]",
		Short: "Compute the punch-out rectangle of elements",
		Long: `Compute the smallest rectangle enclosing every listed element of a layout
snapshot, optionally adjusted by a margin given as x,y,width,height.
With no element ids the ids declared by the layout are listed.

Example:
  tourguide bounds layout.yaml threads-list unread-filter --margin -4,-4,8,8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dom, err := layout.Load(args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return app.Printer.Elements(dom.IDs())
			}

			var m *geometry.Margin
			if cmd.Flags().Changed("margin") {
				if len(margin) != 4 {
					return fmt.Errorf("--margin takes 4 values, got %d", len(margin))
				}
				m = &geometry.Margin{X: margin[0], Y: margin[1], Width: margin[2], Height: margin[3]}
			}

			ids := args[1:]
			r, ok := geometry.ComputeBounds(dom, ids, m)
			return app.Printer.Bounds(ids, r, ok)
		},
	}
	cmd.Flags().Float64SliceVar(&margin, "margin", nil, "margin as x,y,width,height")
	return cmd
}
