package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tourguide/internal/output"
	"tourguide/internal/session"
	"tourguide/internal/tour"
)

func report(s *session.Session) output.StatusReport {
	state := s.State()
	r := output.StatusReport{
		Category:    s.Category(),
		User:        s.UserID(),
		CurrentStep: state.CurrentStep,
		Finished:    state.CurrentStep.IsFinished(),
		AutoAdvance: state.AutoAdvance,
		LastStep:    s.LastStep(),
		IsLastStep:  state.CurrentStep == s.LastStep(),
	}
	if def, ok := s.Registry().Lookup(s.Category(), state.CurrentStep); ok {
		r.StepName = def.Name
	}
	return r
}

// transition runs fn on the selected session, waits for its writes and
// prints the resulting status.
func transition(app *App, fn func(cmd *cobra.Command, args []string, s *session.Session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := app.Session()
		if err != nil {
			return err
		}
		err = fn(cmd, args, s)
		s.Wait()
		if err != nil {
			return err
		}
		return app.Printer.Status(report(s))
	}
}

// exitFinished is the status --check exit code of a finished tour.
const exitFinished = 3

func newStatusCommand(app *App) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tour progress",
		Long: `Show the current step and auto-tour flag of the selected category.
With --check the command exits with status 3 once the tour is finished.

Example:
  tourguide status --category crt --user alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Session()
			if err != nil {
				return err
			}
			if err := app.Printer.Status(report(s)); err != nil {
				return err
			}
			if check && s.State().CurrentStep.IsFinished() {
				return NewExitError(exitFinished)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "exit with status 3 if the tour is finished")
	return cmd
}

func newNextCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Advance to the next step",
		Long: `Advance to the next step. Advancing from the last step finishes the tour.
Admin-only steps are skipped unless --admin is set.`,
		Args: cobra.NoArgs,
		RunE: transition(app, func(cmd *cobra.Command, _ []string, s *session.Session) error {
			_, err := s.Next(cmd.Context())
			return err
		}),
	}
}

func newPrevCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "prev",
		Aliases: []string{"previous", "back"},
		Short:   "Go back one step",
		Args:    cobra.NoArgs,
		RunE: transition(app, func(cmd *cobra.Command, _ []string, s *session.Session) error {
			_, err := s.Previous(cmd.Context())
			return err
		}),
	}
}

func newJumpCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "jump <step>",
		Short: "Jump to a step by index or name",
		Long: `Jump directly to a registered step. The step may be given as its index
or its catalogue name (case-insensitive).

Example:
  tourguide jump MENU_POPOVER
  tourguide jump 2 --category crt`,
		Args: cobra.ExactArgs(1),
		RunE: transition(app, func(cmd *cobra.Command, args []string, s *session.Session) error {
			step, err := resolveStep(s, args[0])
			if err != nil {
				return err
			}
			_, err = s.Jump(cmd.Context(), step)
			return err
		}),
	}
}

// resolveStep parses a step index or name.
func resolveStep(s *session.Session, arg string) (tour.Step, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		return tour.Step(n), nil
	}
	steps, err := s.Registry().Steps(s.Category())
	if err != nil {
		return 0, err
	}
	for _, def := range steps {
		if strings.EqualFold(def.Name, arg) {
			return def.Step, nil
		}
	}
	return 0, fmt.Errorf("%w: %s has no step named %q", session.ErrInvalidStep, s.Category(), arg)
}

func newDismissCommand(app *App) *cobra.Command {
	var untracked bool
	cmd := &cobra.Command{
		Use:   "dismiss",
		Short: "Dismiss the tour and stop auto-advancing",
		Long: `Dismiss the visible tip. The current step is kept; the tour stops showing
itself until it is opened again or started over.`,
		Args: cobra.NoArgs,
		RunE: transition(app, func(cmd *cobra.Command, _ []string, s *session.Session) error {
			s.Dismiss(cmd.Context(), !untracked)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&untracked, "untracked", false, "do not emit a dismiss telemetry event")
	return cmd
}

func newSkipCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the rest of the tour",
		Args:  cobra.NoArgs,
		RunE: transition(app, func(cmd *cobra.Command, _ []string, s *session.Session) error {
			s.Skip(cmd.Context())
			return nil
		}),
	}
}

func newResetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "reset",
		Aliases: []string{"start-over"},
		Short:   "Start the tour over from its first step",
		Args:    cobra.NoArgs,
		RunE: transition(app, func(cmd *cobra.Command, _ []string, s *session.Session) error {
			s.StartOver(cmd.Context())
			return nil
		}),
	}
}

func newStepsCommand(app *App) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List the step catalogue",
		Long: `List the registered steps of the selected category, or of every category
with --all. The current step of the user is marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var categories []tour.Category
			if all {
				categories = app.Registry.Categories()
			} else {
				c, err := app.Category()
				if err != nil {
					return err
				}
				categories = []tour.Category{c}
			}

			defs := make([]tour.Definition, 0, len(categories))
			current := make(map[tour.Category]tour.Step, len(categories))
			for _, c := range categories {
				def, err := app.Registry.Definition(c)
				if err != nil {
					return err
				}
				defs = append(defs, def)

				s, err := app.SessionFor(c)
				if err != nil {
					return err
				}
				current[c] = s.State().CurrentStep
			}
			return app.Printer.Catalogue(defs, current)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every category")
	return cmd
}

// isUsageError reports errors caused by the requested transition rather
// than by the environment.
func isUsageError(err error) bool {
	return errors.Is(err, session.ErrInvalidStep) ||
		errors.Is(err, session.ErrTourFinished) ||
		errors.Is(err, tour.ErrUnknownCategory)
}
