package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	Goals       int                        `json:"goals"`
	Recurrences int                        `json:"recurrences"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan.cue>",
		Short: "Check a plan file without importing it",
		Long: `Check a CUE plan file without importing it.

Performs syntax checking, schema unification and the date and parent
checks that do not need the store. Faster than import for editing plans.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	plan, errs, err := checkPlan(path)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	formatter.VerboseLog("Plan %s: %d goal(s), %d recurrence(s)", path, len(plan.Goals), len(plan.Recurrences))
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:       true,
			Goals:       len(plan.Goals),
			Recurrences: len(plan.Recurrences),
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ Plan valid (%d goal(s), %d recurrence(s))\n", len(plan.Goals), len(plan.Recurrences))
	return nil
}

// checkPlan compiles and validates a plan file. Compile failures are
// returned as validation errors; only an unreadable file is an error.
func checkPlan(path string) (*compiler.Plan, []compiler.ValidationError, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to read plan", err)
	}

	plan, err := compiler.Compile(path, src)
	if err != nil {
		var cErr *compiler.CompileError
		if errors.As(err, &cErr) {
			line := 0
			if cErr.Pos.IsValid() {
				line = cErr.Pos.Line()
			}
			return nil, []compiler.ValidationError{{
				Field:   cErr.Field,
				Message: cErr.Message,
				Code:    cErr.Code,
				Line:    line,
			}}, nil
		}
		return nil, []compiler.ValidationError{{
			Field:   "plan",
			Message: err.Error(),
			Code:    compiler.ErrCodeCUE,
		}}, nil
	}

	return plan, compiler.Validate(plan), nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
