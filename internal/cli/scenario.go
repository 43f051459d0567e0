package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/harness"
)

// ScenarioRunResult holds the overall scenario run result.
type ScenarioRunResult struct {
	Scenarios []harness.SuiteResult `json:"scenarios"`
	Passed    int                   `json:"passed"`
	Failed    int                   `json:"failed"`
	Total     int                   `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>",
		Short: "Run scripted scenarios against a scratch store",
		Long: `Run YAML scenarios against a fresh in-memory store each.

A scenario applies a plan at a fixed start time, steps the clock and
commands, and checks assertions. The configured database is never touched.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing path, etc.)

Examples:
  goalclock scenario ./scenarios
  goalclock scenario ./scenarios/weekly.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	results, err := harness.RunSuite(cmd.Context(), path)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return NewExitError(ExitCommandError, notFound.Error())
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	run := ScenarioRunResult{Scenarios: results, Total: len(results)}
	for _, r := range results {
		if r.Passed() {
			run.Passed++
		} else {
			run.Failed++
		}
	}

	if err := formatter.Render(run, func(w io.Writer) {
		writeScenarioRun(w, run, opts.Verbose)
	}); err != nil {
		return err
	}

	if run.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", run.Failed))
	}
	return nil
}

func writeScenarioRun(w io.Writer, run ScenarioRunResult, verbose bool) {
	if run.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, r := range run.Scenarios {
		name := r.Name
		if name == "" {
			name = r.Path
		}
		if r.Passed() {
			fmt.Fprintf(w, "✓ %s\n", name)
			if verbose {
				for _, ev := range r.Result.Trace {
					fmt.Fprintf(w, "    %d %s %s %v\n", ev.Step, ev.At, ev.Op, ev.Effects)
				}
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		if r.Err != "" {
			fmt.Fprintf(w, "    %s\n", r.Err)
			continue
		}
		for _, e := range r.Result.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", run.Passed, run.Failed, run.Total)
}
