package grant

import (
	"fmt"

	"github.com/tomasbasham/upload-sas/internal/storage"
)

// ValidationError reports a request field that is missing or contains
// characters outside the safe token set. It is safe to show to end users.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field
}

// Message is the text returned to the caller, e.g. "Invalid sid".
func (e *ValidationError) Message() string {
	return "Invalid " + e.Field
}

// ConfigError reports missing or malformed issuer configuration. It cannot be
// fixed by the caller.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Setting, e.Reason)
}

// Kind is the name reported to clients for configuration failures.
func (e *ConfigError) Kind() string {
	return "ConfigurationError"
}

// BackendError reports a failure of the storage identity or signing backend.
type BackendError struct {
	// Kind is the provider error code or error type name.
	Kind string

	// Op is the backend operation that failed, "delegate" or "sign".
	Op string

	Err error
}

func newBackendError(op string, err error) *BackendError {
	return &BackendError{Kind: storage.ErrorKind(err), Op: op, Err: err}
}

func (e *BackendError) Error() string {
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
