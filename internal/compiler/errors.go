package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes reported by Compile and Validate.
const (
	ErrCodeCUE         = "E001" // CUE syntax, schema or concreteness error
	ErrCodeDuration    = "E101" // unparseable duration
	ErrCodeTime        = "E102" // unparseable timestamp
	ErrCodeRule        = "E103" // recurrence needs exactly one of every/weekdays
	ErrCodeEnd         = "E104" // recurrence has both count and until
	ErrCodeParentCycle = "E105" // parent references form a cycle
	ErrCodeShape       = "E110" // draft failed struct validation
	ErrCodeDates       = "E111" // start after deadline
	ErrCodeParent      = "E112" // parent reference problem
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(code, field string, v cue.Value, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Field: field, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	ce := &CompileError{Code: ErrCodeCUE, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// ValidationError is one finding of Validate.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}
