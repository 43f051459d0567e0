package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/config"
	"github.com/roach88/goalclock/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string // overrides database.path
	ConfigFile string

	// Config is loaded by the root command before any subcommand runs.
	// Commands built on their own fall back to config.Default().
	Config *config.Config

	// Clock overrides the wall clock. Nil means the system clock.
	Clock engine.WallClock

	// IDs overrides the id generator. Nil means UUIDv7.
	IDs engine.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the goalclock CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "goalclock",
		Short: "goalclock - deadlines that keep time",
		Long: `A goal tracker driven by the wall clock.

Goals nest under parents, recur on a schedule and are queued for a decision
once their deadline passes. Each command opens the store, advances nothing
on its own and exits; run "goalclock advance" to bring the store up to now.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(config.LoadOptions{ConfigFile: opts.ConfigFile})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			setupLogging(cmd.ErrOrStderr(), opts)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default $XDG_CONFIG_HOME/goalclock/config.yaml)")

	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewAckCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewGoalCommand(opts))
	cmd.AddCommand(NewDraftCommand(opts))
	cmd.AddCommand(NewRecurrenceCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// setupLogging installs the process-wide slog handler. --verbose wins over
// the configured level.
func setupLogging(w io.Writer, opts *RootOptions) {
	level := opts.settings().Log.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
