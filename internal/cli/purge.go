package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/compiler"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	OlderThan string
}

// PurgeResult reports a purge run.
type PurgeResult struct {
	Before  *time.Time `json:"before,omitempty"`
	Removed int        `json:"removed"`
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished goal trees past retention",
		Long: `Delete finished goal trees past retention.

A tree is removed once every goal in it is resolved or dead and none was
updated after the cutoff. The cutoff defaults to retention.dead_after; a
zero retention keeps everything.

Example:
  goalclock purge
  goalclock purge --older-than 12w`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			keep := opts.settings().Retention.DeadAfter
			if opts.OlderThan != "" {
				d, err := compiler.ParseDuration(opts.OlderThan)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --older-than", err)
				}
				keep = d
			}
			formatter := opts.formatter(cmd)
			if keep <= 0 {
				return formatter.Render(PurgeResult{}, func(w io.Writer) {
					fmt.Fprintln(w, "Retention is disabled; nothing purged.")
				})
			}

			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				before := s.engine.Now().Add(-keep)
				n, err := s.engine.Purge(ctx, before)
				if err != nil {
					return err
				}
				return formatter.Render(PurgeResult{Before: &before, Removed: n}, func(w io.Writer) {
					fmt.Fprintf(w, "Purged %d goal(s) finished before %s\n", n, stamp(before))
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.OlderThan, "older-than", "", "retention period (default retention.dead_after)")

	return cmd
}
