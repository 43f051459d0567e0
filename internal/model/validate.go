package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so errors match what users write.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("nonempty", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// FieldIssue is one failed struct-tag rule.
type FieldIssue struct {
	Field string
	Rule  string
	Param string
}

func (f FieldIssue) String() string {
	if f.Param != "" {
		return fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Rule)
}

// ShapeError reports struct-tag violations on a draft, patch or template.
type ShapeError struct {
	Issues []FieldIssue
}

func (e *ShapeError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

// Fields returns the offending field paths.
func (e *ShapeError) Fields() []string {
	out := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		out[i] = is.Field
	}
	return out
}

// ValidateStruct runs the tag rules on s. Failures come back as *ShapeError.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		// Drop the root type name: "GoalDraft.window.duration" -> "window.duration".
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		issues = append(issues, FieldIssue{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return &ShapeError{Issues: issues}
}
