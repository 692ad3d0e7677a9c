package errors

import (
	"fmt"
	"strings"
)

// AppError is the unified error type.
type AppError struct {
	// Code is the machine-readable error kind.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried unchanged.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the upstream status for provider errors, zero otherwise.
	HTTPStatus int `json:"status,omitempty"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error. Provider bodies are
// included so the backend diagnostic reaches the user.
func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if body, ok := e.Details["body"].(string); ok && body != "" {
		fmt.Fprintf(&b, " (body: %s)", body)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (cause: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError by code, so errors.Is(err, &AppError{Code: ErrCodeNotFound}) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// Configuration creates an error for missing or invalid caller input.
func Configuration(field, reason string) *AppError {
	e := &AppError{Code: ErrCodeConfiguration, Message: reason}
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// FieldViolation is one failed schema rule of a ValidationError.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validation creates an error listing every violated field.
func Validation(message string, fields []FieldViolation) *AppError {
	e := &AppError{Code: ErrCodeValidation, Message: message}
	if len(fields) > 0 {
		e.WithDetail("fields", fields)
	}
	return e
}

// Transport creates a retryable error for a network failure.
func Transport(operation string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeTransport,
		Message:   fmt.Sprintf("%s failed to reach the backend", operation),
		Retryable: true,
		Details:   map[string]any{"operation": operation},
		Cause:     cause,
	}
}

// Timeout creates a retryable transport error for an operation that ran out of time.
func Timeout(operation string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeTransport,
		Message:   fmt.Sprintf("%s timed out", operation),
		Retryable: true,
		Details:   map[string]any{"operation": operation, "timeout": true},
		Cause:     cause,
	}
}

// Provider creates an error for a non-success backend response. Only 5xx and 429 are retryable.
func Provider(operation string, status int, body string) *AppError {
	return &AppError{
		Code:       ErrCodeProvider,
		Message:    fmt.Sprintf("%s returned status %d", operation, status),
		Retryable:  IsRetryableStatus(status),
		HTTPStatus: status,
		Details:    map[string]any{"operation": operation, "status": status, "body": body},
	}
}

// Callback creates an error for an authorization redirect that cannot be used.
func Callback(reason string) *AppError {
	return &AppError{Code: ErrCodeCallback, Message: reason}
}

// NotFound creates an error for an absent resource.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: details,
	}
}

// Parse creates an error for an unreadable stored record.
func Parse(id string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("cannot parse %s", id),
		Details: map[string]any{"id": id},
		Cause:   cause,
	}
}

// Storage creates an error for a failing storage backend.
func Storage(operation string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeStorage,
		Message:   fmt.Sprintf("storage %s failed", operation),
		Retryable: true,
		Details:   map[string]any{"operation": operation},
		Cause:     cause,
	}
}

// Internal creates an error for an unexpected failure.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}
