package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
)

// Validator collects validation errors.
type Validator struct {
	errors []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError = errors.FieldViolation

// New creates a new Validator.
func New() *Validator {
	return &Validator{
		errors: make([]FieldError, 0),
	}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns a ValidationError listing every collected violation, nil otherwise.
func (v *Validator) Validate(message string) *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	return errors.Validation(fmt.Sprintf("%s: %s", message, Summary(v.errors)), v.errors)
}

// Summary joins field errors into one line.
func Summary(fields []FieldError) string {
	messages := make([]string, len(fields))
	for i, e := range fields {
		messages[i] = fmt.Sprintf("%s %s", e.Field, e.Message)
	}
	return strings.Join(messages, "; ")
}

// Required checks if a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// Timestamp checks that a required string is an ISO-8601 / RFC 3339 timestamp.
func (v *Validator) Timestamp(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
		return v
	}
	if _, err := ParseTimestamp(value); err != nil {
		v.AddError(field, "must be an ISO-8601 timestamp")
	}
	return v
}

// OptionalTimestamp checks a timestamp only when present.
func (v *Validator) OptionalTimestamp(field, value string) *Validator {
	if value == "" {
		return v
	}
	return v.Timestamp(field, value)
}

// URL checks that a non-empty value is an absolute http(s) URL.
func (v *Validator) URL(field, value string) *Validator {
	if value == "" {
		return v
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		v.AddError(field, "must be an absolute http(s) URL")
	}
	return v
}

// Pattern checks if a string matches a regex pattern.
func (v *Validator) Pattern(field, value string, pattern *regexp.Regexp) *Validator {
	if value == "" {
		return v
	}
	if !pattern.MatchString(value) {
		v.AddError(field, "does not match required format")
	}
	return v
}

// OneOf checks if a value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// RegionPattern matches AWS region names such as us-east-1 or us-gov-west-1.
var RegionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d+$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses the ISO-8601 variants written by the identity backends.
func ParseTimestamp(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
