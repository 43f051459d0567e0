package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/compiler"
)

// ImportResult maps plan labels to the ids they were created with.
type ImportResult struct {
	Goals       map[string]string `json:"goals"`
	Recurrences map[string]string `json:"recurrences"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <plan.cue>",
		Short: "Create the goals and recurrences of a plan file",
		Long: `Create the goals and recurrences declared in a CUE plan file.

The plan is validated first; nothing is created if it has errors. A parent
that is not a label in the plan is taken as the id of an existing goal.
Import stops at the first goal the engine rejects; goals created before
it are kept and listed.

Example:
  goalclock import spring.cue
  goalclock validate spring.cue && goalclock import spring.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			plan, errs, err := checkPlan(args[0])
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				return outputValidationErrors(formatter, errs)
			}

			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				applied, err := compiler.Apply(ctx, s.engine, plan)
				result := ImportResult{Goals: applied.Goals, Recurrences: applied.Recurrences}
				if err != nil {
					if len(result.Goals) > 0 || len(result.Recurrences) > 0 {
						w := formatter.GetErrWriter()
						fmt.Fprintln(w, "Created before the failure:")
						writeLabels(w, result)
					}
					return err
				}
				return formatter.Render(result, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d goal(s), %d recurrence(s)\n", len(result.Goals), len(result.Recurrences))
					writeLabels(w, result)
				})
			})
		},
	}
}

func writeLabels(w io.Writer, r ImportResult) {
	for _, label := range sortedKeys(r.Goals) {
		fmt.Fprintf(w, "  goal %s = %s\n", label, r.Goals[label])
	}
	for _, label := range sortedKeys(r.Recurrences) {
		fmt.Fprintf(w, "  recurrence %s = %s\n", label, r.Recurrences[label])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
