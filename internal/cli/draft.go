package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/compiler"
)

// NewDraftCommand creates the draft command group.
func NewDraftCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Work with draft goals",
	}
	cmd.AddCommand(newDraftDueCommand(rootOpts))
	cmd.AddCommand(newDraftPromoteCommand(rootOpts))
	cmd.AddCommand(newDraftRevertCommand(rootOpts))
	return cmd
}

// DraftDueOptions holds flags for draft due.
type DraftDueOptions struct {
	*RootOptions
	Lead string
}

func newDraftDueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftDueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "due",
		Short:         "List drafts whose tentative date is near",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lead := opts.settings().Drafts.LeadTime
			if opts.Lead != "" {
				d, err := compiler.ParseDuration(opts.Lead)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --lead", err)
				}
				lead = d
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				goals, err := s.engine.DraftsDue(ctx, s.engine.Now(), lead)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(goals, func(w io.Writer) {
					if len(goals) == 0 {
						fmt.Fprintln(w, "No drafts due.")
						return
					}
					for _, g := range goals {
						fmt.Fprintf(w, "  %s  tentative %s  %s\n", g.ID, stamp(*g.TentativeDate), g.Title)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Lead, "lead", "", "lead time (default drafts.lead_time)")

	return cmd
}

// PromoteOptions holds flags for draft promote.
type PromoteOptions struct {
	*RootOptions
	Start    string
	Deadline string
}

func newDraftPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PromoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "promote <goal-id>",
		Short: "Turn a draft into an active goal",
		Long: `Turn a draft into an active goal.

The start defaults to now. Event goals without --deadline derive it from
their criteria time.

Example:
  goalclock draft promote 0192f1c4 --start 2026-03-10 --deadline 2026-03-20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseTimeFlag("start", opts.Start)
			if err != nil {
				return err
			}
			deadline, err := parseTimeFlag("deadline", opts.Deadline)
			if err != nil {
				return err
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				from := s.engine.Now()
				if start != nil {
					from = *start
				}
				g, err := s.engine.Promote(ctx, args[0], from, deadline)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(g, func(w io.Writer) {
					fmt.Fprintf(w, "Promoted %s\n", g.ID)
					writeGoalLine(w, g)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "start date (default now)")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline")

	return cmd
}

// RevertOptions holds flags for draft revert.
type RevertOptions struct {
	*RootOptions
	Tentative string
}

func newDraftRevertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RevertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "revert <goal-id>",
		Short:         "Turn an active goal back into a draft",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tentative, err := parseTimeFlag("tentative", opts.Tentative)
			if err != nil {
				return err
			}
			return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
				g, err := s.engine.RevertToDraft(ctx, args[0], tentative)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(g, func(w io.Writer) {
					fmt.Fprintf(w, "Reverted %s to draft\n", g.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Tentative, "tentative", "", "tentative date for the draft")

	return cmd
}
