// Package cli implements the tourguide command-line interface using Cobra.
//
// The CLI drives guided tours from the terminal: it reads and advances a
// user's progress in any tour category, computes punch-out rectangles
// against layout snapshots, and plays a tour interactively.
//
// Key types:
//   - [App] is the dependency container shared by every command
//   - [ExecuteResult] carries the exit code of a test-friendly run
//   - [ExitError] signals a non-zero exit from a command
//
// Use [Execute] from main. Tests build an [App] with in-memory
// dependencies and call [NewRootCommand] directly.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tourguide/internal/config"
	"tourguide/internal/manifest"
	"tourguide/internal/output"
	"tourguide/internal/prefs"
	"tourguide/internal/session"
	"tourguide/internal/telemetry"
	"tourguide/internal/tour"
)

// defaultSQLitePath is the database location of the sqlite driver,
// relative to the working directory.
const defaultSQLitePath = ".tourguide/preferences.db"

// categoryAliases are the short names accepted by --category.
var categoryAliases = map[string]tour.Category{
	"onboarding":  tour.Onboarding,
	"crt":         tour.CRTTutorial,
	"thread-pane": tour.CRTThreadPane,
	"start-trial": tour.StartTrial,
}

// App holds the dependencies of every command.
//
// Fields left nil are built from Config by [App.Setup] before a command
// runs, so tests can inject fakes for any of them.
type App struct {
	Config    *config.Config
	Registry  *tour.Registry
	Store     prefs.Store
	Hooks     *session.Hooks
	Telemetry telemetry.Sink
	Logger    *zap.Logger
	Printer   *output.Printer
	Player    Player

	category string
	verbose  bool
	jsonOut  bool
	closers  []func(context.Context) error
}

// Setup builds the dependencies that were not injected.
func (a *App) Setup(ctx context.Context) error {
	if a.Config == nil {
		a.Config = config.DefaultConfig()
	}
	if a.Printer == nil {
		a.Printer = output.NewPrinter()
	}
	a.Printer.SetJSON(a.jsonOut)

	if a.Logger == nil {
		logger, err := newLogger(a.Config.Log.Level, a.verbose)
		if err != nil {
			return err
		}
		a.Logger = logger
	}

	if a.Registry == nil {
		a.Registry = tour.DefaultRegistry()
		if path := a.Config.Tour.Manifest; path != "" {
			m, err := manifest.Load(path)
			if err != nil {
				return err
			}
			if err := m.Apply(a.Registry); err != nil {
				return err
			}
			a.Logger.Debug("applied tour manifest", zap.String("path", path), zap.Int("steps", len(m.Entries)))
		}
	}

	if a.Hooks == nil {
		a.Hooks = session.DefaultHooks()
	}

	if a.Store == nil {
		store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		a.Store = store
	}

	if a.Telemetry == nil {
		sink, err := a.openSink(ctx)
		if err != nil {
			return err
		}
		a.Telemetry = sink
	}

	if a.Player == nil {
		a.Player = teaPlayer{}
	}
	return nil
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = lvl
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func (a *App) openStore(ctx context.Context) (prefs.Store, error) {
	cfg := a.Config
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		path := cfg.Store.Path
		if path == "" {
			path = defaultSQLitePath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		store, err := prefs.OpenSQLite(ctx, path, cfg.User.ID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	case config.DriverMemory:
		return prefs.NewMemoryStore(), nil
	default:
		return prefs.NewFileStore(prefs.ResolvePath(".", cfg.Store.Path), cfg.User.ID), nil
	}
}

func (a *App) openSink(ctx context.Context) (telemetry.Sink, error) {
	switch a.Config.Telemetry.Sink {
	case config.SinkOTel:
		oc, err := telemetry.LoadOTelConfig()
		if err != nil {
			return nil, err
		}
		shutdown, err := telemetry.Setup(ctx, a.Config.Telemetry.ServiceName, oc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
		// Spans are batched, so events are also logged as they happen.
		return telemetry.Multi(telemetry.NewOTelSink(nil), telemetry.NewZapSink(a.Logger)), nil
	case config.SinkNone:
		return telemetry.Nop, nil
	default:
		return telemetry.NewZapSink(a.Logger), nil
	}
}

// Close releases the store and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// Category resolves the --category flag.
func (a *App) Category() (tour.Category, error) {
	name := a.category
	if name == "" {
		return tour.Onboarding, nil
	}
	if c, ok := categoryAliases[strings.ToLower(name)]; ok {
		return c, nil
	}
	c := tour.Category(name)
	if _, err := a.Registry.Definition(c); err != nil {
		return "", err
	}
	return c, nil
}

// Session opens the current user's session in the selected category.
func (a *App) Session() (*session.Session, error) {
	c, err := a.Category()
	if err != nil {
		return nil, err
	}
	return a.SessionFor(c)
}

// SessionFor opens the current user's session in category c.
func (a *App) SessionFor(c tour.Category) (*session.Session, error) {
	cfg := a.Config
	s, err := session.New(cfg.User.ID, c, a.Registry, a.Store)
	if err != nil {
		return nil, err
	}
	s.SetLogger(a.Logger)
	s.SetAdmin(cfg.User.Admin)
	s.SetHooks(a.Hooks)
	s.SetTelemetry(a.Telemetry)
	s.SetRetry(cfg.Persist.MaxRetries, cfg.Persist.InitialBackoff)
	if cfg.Tour.TelemetryTag != "" {
		s.SetTelemetryTag(cfg.Tour.TelemetryTag)
	}
	return s, nil
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand(app *App) *cobra.Command {
	var user string
	var admin bool

	rootCmd := &cobra.Command{
		Use:   "tourguide",
		Short: "Drive guided product tours from the terminal",
		Long: `tourguide tracks per-user progress through guided tours, computes the
punch-out rectangles that keep highlighted elements visible through the
tour overlay, and plays tours interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				app.Config = config.DefaultConfig()
			}
			if cmd.Flags().Changed("user") {
				app.Config.User.ID = user
			}
			if cmd.Flags().Changed("admin") {
				app.Config.User.Admin = admin
			}
			if err := app.Config.Validate(); err != nil {
				return err
			}
			return app.Setup(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&user, "user", "", "user id whose progress is used (default from config)")
	flags.BoolVar(&admin, "admin", false, "include admin-only steps")
	flags.StringVarP(&app.category, "category", "c", "", "tour category or alias: onboarding, crt, thread-pane, start-trial")
	flags.BoolVar(&app.jsonOut, "json", false, "print JSON instead of styled text")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newStepsCommand(app),
		newStatusCommand(app),
		newNextCommand(app),
		newPrevCommand(app),
		newJumpCommand(app),
		newDismissCommand(app),
		newSkipCommand(app),
		newResetCommand(app),
		newBoundsCommand(app),
		newPlayCommand(app),
		newPrefsCommand(app),
	)

	return rootCmd
}

// ExecuteResult is the outcome of [RunWithConfig].
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// Execute loads configuration, runs the CLI and exits the process.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	result := RunWithConfig(cfg, os.Args[1:])
	os.Exit(result.ExitCode)
}

// RunWithConfig runs the CLI with the given configuration and arguments
// without exiting the process.
func RunWithConfig(cfg *config.Config, args []string) ExecuteResult {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{Config: cfg}
	defer app.Close(context.WithoutCancel(ctx))

	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		if app.Printer != nil {
			app.Printer.Error(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if isUsageError(err) {
			return ExecuteResult{ExitCode: 2, Err: err}
		}
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{ExitCode: 0}
}
