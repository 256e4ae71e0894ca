package cloud

import "errors"

// Common errors returned by backends.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, cloud.ErrNotAuthenticated) {
//	    // ask the user to reconnect
//	}
var (
	// ErrUnknownBackend is returned when no backend is registered under
	// the configured name.
	ErrUnknownBackend = errors.New("unknown cloud backend")

	// ErrNotAuthenticated is returned when the backend rejects the
	// credentials or no session exists.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotFound is returned when a remote object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecord is returned when a record cannot be stored or a
	// remote document cannot be decoded.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnavailable is returned for transient backend failures
	// (server errors, timeouts).
	ErrUnavailable = errors.New("backend unavailable")

	// ErrMissingSetting is returned by constructors when a required
	// setting is absent.
	ErrMissingSetting = errors.New("missing required setting")
)

// IsRetryable returns true if the error is likely to succeed on the next pass.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable)
}

// IsAuthError returns true if the error requires the user to reconnect.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotAuthenticated)
}
