package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/compiler"
	"github.com/roach88/goalclock/internal/model"
)

// NewGoalCommand creates the goal command group.
func NewGoalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "List, inspect and update goals",
	}
	cmd.AddCommand(newGoalListCommand(rootOpts))
	cmd.AddCommand(newGoalShowCommand(rootOpts))
	cmd.AddCommand(newGoalCheckOffCommand(rootOpts))
	cmd.AddCommand(newGoalDeleteCommand(rootOpts))
	cmd.AddCommand(newGoalFeedCommand(rootOpts))
	cmd.AddCommand(newGoalCheckCommand(rootOpts))
	return cmd
}

// GoalListOptions holds flags for goal list.
type GoalListOptions struct {
	*RootOptions
	Statuses     []string
	Kinds        []string
	From         string
	To           string
	Parent       string
	Recurrence   string
	Roots        bool
	DeadlineLess bool
}

var knownStatuses = []model.Status{
	model.StatusDraft, model.StatusActive, model.StatusPendingFinalization,
	model.StatusResolvedSuccess, model.StatusResolvedFailure, model.StatusDead,
}

var knownKinds = []model.Kind{model.KindTask, model.KindTime, model.KindWindow, model.KindEvent}

func (o *GoalListOptions) filter() (model.GoalFilter, error) {
	f := model.GoalFilter{
		ParentID:     o.Parent,
		RecurrenceID: o.Recurrence,
		RootsOnly:    o.Roots,
		DeadlineLess: o.DeadlineLess,
	}
	for _, s := range o.Statuses {
		st := model.Status(s)
		if !containsValue(knownStatuses, st) {
			return f, NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", s))
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, k := range o.Kinds {
		kind := model.Kind(k)
		if !containsValue(knownKinds, kind) {
			return f, NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q", k))
		}
		f.Kinds = append(f.Kinds, kind)
	}
	var err error
	if f.From, err = parseTimeFlag("from", o.From); err != nil {
		return f, err
	}
	if f.To, err = parseTimeFlag("to", o.To); err != nil {
		return f, err
	}
	return f, nil
}

func containsValue[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func newGoalListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GoalListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		Long: `List goals, optionally filtered.

--from and --to select goals whose [start, deadline] overlaps the range;
a goal without a deadline extends indefinitely.

Example:
  goalclock goal list --status active --status pending-finalization
  goalclock goal list --from 2026-03-01 --to 2026-03-31 --kind task`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.filter()
			if err != nil {
				return err
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				goals, err := s.engine.ListGoals(ctx, f)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(goals, func(w io.Writer) {
					writeGoals(w, goals)
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "only goals with this status (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only goals of this kind (repeatable)")
	cmd.Flags().StringVar(&opts.From, "from", "", "range start")
	cmd.Flags().StringVar(&opts.To, "to", "", "range end")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "only children of this goal")
	cmd.Flags().StringVar(&opts.Recurrence, "recurrence", "", "only instances of this recurrence")
	cmd.Flags().BoolVar(&opts.Roots, "roots", false, "only goals without a parent")
	cmd.Flags().BoolVar(&opts.DeadlineLess, "deadline-less", false, "only goals without a deadline")

	return cmd
}

func newGoalShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <goal-id>",
		Short:         "Show one goal with its progress and callbacks",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				g, err := s.engine.Goal(ctx, args[0])
				if err != nil {
					return err
				}
				all, err := s.engine.PendingAcks(ctx)
				if err != nil {
					return err
				}
				var acks []model.PendingAck
				for _, a := range all {
					if a.GoalID == g.ID {
						acks = append(acks, a)
					}
				}
				data := map[string]any{"goal": g, "acks": acks}
				return opts.formatter(cmd).Render(data, func(w io.Writer) {
					writeGoalDetail(w, g, acks)
				})
			})
		},
	}
}

func newGoalCheckOffCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkoff <goal-id>",
		Short: "Mark an active goal as succeeded before its deadline",
		Long: `Mark an active goal as succeeded before its deadline.

Runs on_success and on_finally. Live subgoals are killed and run only
their on_finally callbacks.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				res, err := s.engine.CheckOff(ctx, args[0])
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(res, func(w io.Writer) {
					writeResolveResult(w, res)
				})
			})
		},
	}
}

// GoalDeleteOptions holds flags for goal delete.
type GoalDeleteOptions struct {
	*RootOptions
	Cascade bool
}

func newGoalDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GoalDeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <goal-id>",
		Short: "Delete a goal",
		Long: `Delete a goal.

A goal with subgoals is only deleted with --cascade, which removes the
whole subtree. Removed descendants run their automatic on_finally
callbacks; manual ones are printed once as notices.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				res, err := s.engine.DeleteGoal(ctx, args[0], opts.Cascade)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(res, func(w io.Writer) {
					writeDeleteResult(w, res)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Cascade, "cascade", false, "also delete every descendant")

	return cmd
}

func newGoalFeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feed <goal-id> <duration>",
		Short: "Add worked time to a time-based goal",
		Long: `Add worked time to a time-based goal.

Example:
  goalclock goal feed 0192f1c4 1h30m
  goalclock goal feed 0192f1c4 2d`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := compiler.ParseDuration(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid duration", err)
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				g, err := s.engine.FeedTime(ctx, args[0], d)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(g, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s of %s\n", g.ID, g.Progress.Accumulated, g.CriteriaTime)
					if g.CriteriaMet() {
						fmt.Fprintln(w, "  criteria met")
					}
				})
			})
		},
	}
}

// GoalCheckOptions holds flags for goal check.
type GoalCheckOptions struct {
	*RootOptions
	Undo bool
}

func newGoalCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GoalCheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <goal-id> <item>",
		Short: "Tick a checklist item of a task goal",
		Long: `Tick a checklist item of a task goal. Items count from 0.

Example:
  goalclock goal check 0192f1c4 2
  goalclock goal check 0192f1c4 2 --undo`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid item %q", args[1]))
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				g, err := s.engine.CheckItem(ctx, args[0], index, !opts.Undo)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(g, func(w io.Writer) {
					writeGoalDetail(w, g, nil)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Undo, "undo", false, "untick the item instead")

	return cmd
}
