package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// AdvanceOptions holds flags for the advance command.
type AdvanceOptions struct {
	*RootOptions
	At string
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdvanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Bring the store up to the current time",
		Long: `Bring the store up to the current time.

Spawns due recurrence instances, queues expired goals, replays window
goals and flags drafts due for promotion, then prints everything that
needs attention. Running it twice at the same time changes nothing.

Example:
  goalclock advance
  goalclock advance --at 2026-03-09T09:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseTimeFlag("at", opts.At)
			if err != nil {
				return err
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				now := s.engine.Now()
				if at != nil {
					now = *at
				}
				att, err := s.engine.Advance(ctx, now)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(att, func(w io.Writer) {
					writeAttention(w, att)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "advance to this time instead of now (RFC3339 or YYYY-MM-DD)")

	return cmd
}
