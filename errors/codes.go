package errors

// ErrorCode represents a machine-readable error kind.
type ErrorCode string

// Caller errors (never retryable without changing the input)
const (
	// ErrCodeConfiguration indicates missing or invalid caller-supplied input.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
	// ErrCodeValidation indicates a token record that violates its schema.
	ErrCodeValidation ErrorCode = "VALIDATION"
)

// Remote errors
const (
	// ErrCodeTransport indicates a network failure or timeout.
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// ErrCodeProvider indicates the identity backend answered with a non-success status.
	ErrCodeProvider ErrorCode = "PROVIDER"
	// ErrCodeCallback indicates the authorization redirect carried an error or was malformed.
	ErrCodeCallback ErrorCode = "CALLBACK"
)

// Storage errors
const (
	// ErrCodeNotFound indicates the requested token record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeParse indicates a stored record is unreadable or corrupt.
	ErrCodeParse ErrorCode = "PARSE"
	// ErrCodeStorage indicates the storage backend failed to read or write.
	ErrCodeStorage ErrorCode = "STORAGE"
)

// ErrCodeInternal indicates an unexpected failure such as an unavailable entropy source.
const ErrCodeInternal ErrorCode = "INTERNAL"

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTransport: true,
	ErrCodeStorage:   true,
	ErrCodeInternal:  false,
}

// IsRetryableCode returns true if the error code is retryable regardless of context.
// Provider errors are decided per status code, see Provider.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// IsRetryableStatus reports whether an upstream HTTP status is worth retrying.
func IsRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}
