package common

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidationError is one failed rule for one field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationRule checks a single field value; nil means it passed.
type ValidationRule func(field string, value any) *ValidationError

// Validator collects rule failures across fields.
type Validator struct {
	failures []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs every rule against value and records the failures.
func (v *Validator) Field(field string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if f := rule(field, value); f != nil {
			v.failures = append(v.failures, *f)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.failures) > 0 }

func (v *Validator) Errors() []ValidationError { return v.failures }

// ErrorMessage joins all failures with "; ".
func (v *Validator) ErrorMessage() string {
	msgs := make([]string, 0, len(v.failures))
	for _, f := range v.failures {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateAndReturnError wraps collected failures as a VALIDATION_ERROR AppError.
func ValidateAndReturnError(v *Validator) error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError("VALIDATION_ERROR", v.ErrorMessage(), ErrValidation)
}

func stringValue(value any) (string, bool) {
	switch s := value.(type) {
	case string:
		return s, true
	case *string:
		if s == nil {
			return "", true
		}
		return *s, true
	}
	return "", false
}

func Required(field string, value any) *ValidationError {
	if value == nil {
		return &ValidationError{Field: field, Value: value, Message: "is required"}
	}
	if s, ok := stringValue(value); ok && strings.TrimSpace(s) == "" {
		return &ValidationError{Field: field, Value: value, Message: "is required"}
	}
	return nil
}

// MaxLength limits strings to max runes.
func MaxLength(max int) ValidationRule {
	return func(field string, value any) *ValidationError {
		s, ok := stringValue(value)
		if ok && utf8.RuneCountInString(s) > max {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be at most %d characters", max)}
		}
		return nil
	}
}

func UUID(field string, value any) *ValidationError {
	s, ok := stringValue(value)
	if !ok {
		return &ValidationError{Field: field, Value: value, Message: "must be a string"}
	}
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return &ValidationError{Field: field, Value: value, Message: "must be a valid UUID"}
	}
	return nil
}

// OneOf accepts only the listed values. Empty strings pass; pair with
// Required when the field is mandatory.
func OneOf(allowed ...string) ValidationRule {
	return func(field string, value any) *ValidationError {
		s, ok := stringValue(value)
		if !ok || s == "" {
			return nil
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Value: value, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}

// Pattern requires non-empty strings to match re.
func Pattern(re *regexp.Regexp, description string) ValidationRule {
	return func(field string, value any) *ValidationError {
		s, ok := stringValue(value)
		if !ok || s == "" || re.MatchString(s) {
			return nil
		}
		return &ValidationError{Field: field, Value: value, Message: "must be " + description}
	}
}

// IntRange accepts ints in [lo, hi].
func IntRange(lo, hi int) ValidationRule {
	return func(field string, value any) *ValidationError {
		n, ok := value.(int)
		if !ok {
			return &ValidationError{Field: field, Value: value, Message: "must be an integer"}
		}
		if n < lo || n > hi {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be between %d and %d", lo, hi)}
		}
		return nil
	}
}
