package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewAckCommand creates the ack command.
func NewAckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ack [<goal-id> <index>]",
		Short: "Acknowledge a manual callback",
		Long: `Acknowledge a manual callback.

Without arguments, lists every open acknowledgment. Indices count from 1
per goal. Confirming a goal's last blocking acknowledgment finalizes it.

Example:
  goalclock ack
  goalclock ack 0192f1c4 1`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listAcks(cmd, opts)
			}
			index, err := strconv.Atoi(args[1])
			if err != nil || index < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid index %q: must be a positive integer", args[1]))
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				res, err := s.engine.Acknowledge(ctx, args[0], index)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Acknowledged %s#%d: %s\n", res.Ack.GoalID, res.Ack.Index, res.Ack.Text)
					if res.Finalized {
						fmt.Fprintf(w, "%s is %s\n", res.Ack.GoalID, res.Status)
					}
					if len(res.Killed) > 0 {
						fmt.Fprintf(w, "  killed %s\n", strings.Join(res.Killed, ", "))
					}
				})
			})
		},
	}
}

func listAcks(cmd *cobra.Command, opts *RootOptions) error {
	return withSession(cmd, opts, func(ctx context.Context, s *session) error {
		acks, err := s.engine.PendingAcks(ctx)
		if err != nil {
			return err
		}
		return opts.formatter(cmd).Render(acks, func(w io.Writer) {
			if len(acks) == 0 {
				fmt.Fprintln(w, "Nothing to acknowledge.")
				return
			}
			writeAcks(w, acks)
		})
	})
}
