package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/goalclock/internal/model"
	"github.com/roach88/goalclock/internal/store"
)

// Error is the error type returned by every engine operation.
//
// Codes:
//   - VALIDATION: an invariant or field rule failed on create/update/promote
//   - NOT_FOUND: unknown goal, recurrence or acknowledgment
//   - CONFLICT: the operation collides with existing state, e.g. resolving
//     a goal that is not queued
//   - STATE: the transition is illegal from the current status
//
// The store is left unchanged whenever an Error is returned.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// GoalID identifies the affected goal or recurrence, when known.
	GoalID string

	// Invariant names the violated rule (validation errors only).
	Invariant string

	// Fields lists the offending fields (validation errors only).
	Fields []string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConflict   ErrorCode = "CONFLICT"
	ErrCodeState      ErrorCode = "STATE"
)

// Invariant identifiers carried by validation errors.
const (
	InvariantShape          = "shape"
	InvariantDates          = "start_before_deadline"
	InvariantParentBounds   = "parent_bounds"
	InvariantChildBounds    = "child_bounds"
	InvariantRecurrence     = "recurrence_within_parent"
	InvariantSingleInstance = "single_active_instance"
	InvariantTightlyBound   = "tightly_bound"
	InvariantWindowNumeric  = "window_numeric"
	InvariantCriteria       = "criteria"
	InvariantTree           = "tree"
	InvariantAction         = "registered_action"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	var details []string
	if e.GoalID != "" {
		details = append(details, "id="+e.GoalID)
	}
	if e.Invariant != "" {
		details = append(details, "invariant="+e.Invariant)
	}
	if len(e.Fields) > 0 {
		details = append(details, "fields="+strings.Join(e.Fields, ","))
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	}
	return b.String()
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsValidation returns true if the error is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsNotFound returns true if the error is a not-found error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsConflict returns true if the error is a conflict error.
func IsConflict(err error) bool { return hasCode(err, ErrCodeConflict) }

// IsState returns true if the error is an illegal-transition error.
func IsState(err error) bool { return hasCode(err, ErrCodeState) }

// InvariantOf returns the invariant carried by a validation error, or "".
func InvariantOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Invariant
	}
	return ""
}

func validationError(id, invariant, msg string, fields ...string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg, GoalID: id, Invariant: invariant, Fields: fields}
}

func notFoundError(what, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: what + " not found", GoalID: id}
}

func conflictError(id, msg string) *Error {
	return &Error{Code: ErrCodeConflict, Message: msg, GoalID: id}
}

func stateError(id, format string, args ...any) *Error {
	return &Error{Code: ErrCodeState, Message: fmt.Sprintf(format, args...), GoalID: id}
}

// shapeError converts struct-tag failures to a validation error.
func shapeError(id string, err error) error {
	var se *model.ShapeError
	if errors.As(err, &se) {
		return validationError(id, InvariantShape, se.Error(), se.Fields()...)
	}
	return err
}

// notFound maps store.ErrNotFound to a NOT_FOUND engine error and passes
// every other error through.
func notFound(err error, what, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(what, id)
	}
	return err
}
