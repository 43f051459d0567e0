package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/model"
)

// NewRecurrenceCommand creates the recurrence command group.
func NewRecurrenceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurrence",
		Short: "Inspect recurrences",
	}
	cmd.AddCommand(newRecurrenceListCommand(rootOpts))
	return cmd
}

func newRecurrenceListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List recurrences and their next occurrence",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				recs, err := s.engine.ListRecurrences(ctx)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Render(recs, func(w io.Writer) {
					if len(recs) == 0 {
						fmt.Fprintln(w, "No recurrences.")
						return
					}
					for _, r := range recs {
						writeRecurrenceLine(w, r)
					}
				})
			})
		},
	}
}

func writeRecurrenceLine(w io.Writer, r model.Recurrence) {
	fmt.Fprintf(w, "  %s  %-24s %s  %s\n", r.ID, ruleText(r.Rule), endText(r.End), r.Template.Title)
	if r.SpawnedThrough != nil {
		fmt.Fprintf(w, "      spawned through %s\n", stamp(*r.SpawnedThrough))
	}
}

func ruleText(r model.RuleSpec) string {
	if len(r.Weekdays) > 0 {
		return "on " + strings.Join(r.Weekdays, ",")
	}
	n := r.N
	if n <= 0 {
		n = 1
	}
	return fmt.Sprintf("every %d %s", n, r.Unit)
}

func endText(e model.EndCondition) string {
	switch {
	case e.Type == model.EndCount:
		return fmt.Sprintf("%d times", e.Count)
	case e.Until != nil:
		return "until " + stamp(*e.Until)
	}
	return "forever"
}
