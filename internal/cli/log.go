package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	At string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <goal-id> <quantity>",
		Short: "Record activity against a window goal",
		Long: `Record activity against a window goal.

The entry counts toward the trailing window from its timestamp on. Window
callbacks fire on the next advance, which replays every entry logged since
the last one. Entries dated before that advance only change later
evaluations; callbacks already fired are not revisited.

Example:
  goalclock log 0192f1c4 1
  goalclock log 0192f1c4 2.5 --at 2026-03-04T18:30:00Z`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid quantity %q", args[1]))
			}
			at, err := parseTimeFlag("at", opts.At)
			if err != nil {
				return err
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				ts := s.engine.Now()
				if at != nil {
					ts = *at
				}
				if err := s.engine.Log(ctx, args[0], ts, qty); err != nil {
					return err
				}
				data := map[string]any{"goal_id": args[0], "at": ts, "quantity": qty}
				return opts.formatter(cmd).Render(data, func(w io.Writer) {
					fmt.Fprintf(w, "Logged %g on %s at %s\n", qty, args[0], stamp(ts))
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "time of the activity (default now)")

	return cmd
}
