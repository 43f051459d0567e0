package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/engine"
	"github.com/roach88/goalclock/internal/model"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and resolve expired goals",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueResolveCommand(rootOpts))
	return cmd
}

func newQueueListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List expired goals in resolution order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				entries, err := s.engine.ResolutionQueue(ctx)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(entries, func(w io.Writer) {
					if len(entries) == 0 {
						fmt.Fprintln(w, "Queue is empty.")
						return
					}
					writeQueue(w, entries)
				})
			})
		},
	}
}

// ResolveOptions holds flags for queue resolve.
type ResolveOptions struct {
	*RootOptions
	Deadline   string
	NoDeadline bool
}

func newQueueResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <goal-id> <success|failure|edit|delete>",
		Short: "Decide the outcome of a queued goal",
		Long: `Decide the outcome of a queued goal.

Queued descendants must be resolved before their ancestors. "edit" moves
the deadline (--deadline) or removes it (--no-deadline); a goal whose new
deadline has already passed goes back into the queue.

Example:
  goalclock queue resolve 0192f1c4 success
  goalclock queue resolve 0192f1c4 edit --deadline 2026-04-01`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.resolution(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				out, err := s.engine.Resolve(ctx, args[0], res)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(out, func(w io.Writer) {
					writeResolveResult(w, out)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "new deadline for edit")
	cmd.Flags().BoolVar(&opts.NoDeadline, "no-deadline", false, "remove the deadline for edit")

	return cmd
}

func (o *ResolveOptions) resolution(kind string) (engine.Resolution, error) {
	res := engine.Resolution{Kind: engine.ResolutionKind(kind)}
	switch res.Kind {
	case engine.ResolveSuccess, engine.ResolveFailure, engine.ResolveDelete:
		return res, nil
	case engine.ResolveEdit:
	default:
		return res, NewExitError(ExitCommandError, fmt.Sprintf("unknown resolution %q: must be success, failure, edit or delete", kind))
	}

	deadline, err := parseTimeFlag("deadline", o.Deadline)
	if err != nil {
		return res, err
	}
	switch {
	case o.NoDeadline && deadline != nil:
		return res, NewExitError(ExitCommandError, "--deadline and --no-deadline are mutually exclusive")
	case o.NoDeadline:
		res.Patch = &model.GoalPatch{ClearDeadline: true}
	case deadline != nil:
		res.Patch = &model.GoalPatch{Deadline: deadline}
	default:
		return res, NewExitError(ExitCommandError, "edit needs --deadline or --no-deadline")
	}
	return res, nil
}
