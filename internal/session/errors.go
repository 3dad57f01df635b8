// Sentinel errors for session store operations.
// These errors should be wrapped with context using fmt.Errorf("%w") when
// returned, and checked in handlers with errors.Is.
package session

import "errors"

var (
	// ErrInvalidCredentials indicates the store rejected the email/password
	// pair. HTTP Status: 401 Unauthorized.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailExists indicates the email is already registered with the
	// store. HTTP Status: 409 Conflict.
	ErrEmailExists = errors.New("email already registered")

	// ErrWeakPassword indicates the store rejected the password as too
	// weak. HTTP Status: 400 Bad Request.
	ErrWeakPassword = errors.New("password too weak")

	// ErrStoreUnavailable indicates a transport or infrastructure failure
	// talking to the store. Navigation-path callers fail open to anonymous;
	// auth operations surface it. HTTP Status: 500 Internal Server Error.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
