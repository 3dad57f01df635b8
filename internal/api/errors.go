// Error taxonomy of the knowme API surface.
//
// Non-2xx responses carry {code, message}; Error preserves both and maps the
// code onto package sentinels so callers can branch with errors.Is:
//
//	if err := client.AddMVP(ctx, id); errors.Is(err, api.ErrLimitExceeded) {
//	    // show the cap message verbatim
//	}
package api

import "errors"

// Error codes observed on the wire.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeAuthentication   = "AUTHENTICATION_ERROR"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
	CodeDuplicateEmail   = "DUPLICATE_EMAIL"
	CodeWeakPassword     = "WEAK_PASSWORD"
	CodeMVPLimitExceeded = "MAX_MVP_LIMIT_EXCEEDED"
)

// Sentinel errors, one per taxonomy class.
var (
	// ErrValidation indicates missing or malformed input, caught before any
	// network call where possible. HTTP Status: 400 Bad Request.
	ErrValidation = errors.New("validation failed")

	// ErrAuthentication indicates bad credentials or a bad session.
	// HTTP Status: 401 Unauthorized.
	ErrAuthentication = errors.New("authentication failed")

	// ErrDuplicateEmail indicates the email is already registered.
	// HTTP Status: 409 Conflict.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrWeakPassword indicates the password failed the strength check.
	// HTTP Status: 400 Bad Request.
	ErrWeakPassword = errors.New("password too weak")

	// ErrLimitExceeded indicates the MVP cap was reached for this user.
	// HTTP Status: 409 Conflict.
	ErrLimitExceeded = errors.New("mvp limit exceeded")

	// ErrInternal indicates an unexpected server-side failure.
	// HTTP Status: 500 Internal Server Error.
	ErrInternal = errors.New("internal error")
)

// Error is a typed API failure: the HTTP status, the server-supplied code,
// and a user-displayable message (the server's verbatim, or the operation's
// fallback when the server gave none).
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap maps the wire code to the matching sentinel.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeValidation:
		return ErrValidation
	case CodeAuthentication:
		return ErrAuthentication
	case CodeDuplicateEmail:
		return ErrDuplicateEmail
	case CodeWeakPassword:
		return ErrWeakPassword
	case CodeMVPLimitExceeded:
		return ErrLimitExceeded
	case CodeInternal:
		return ErrInternal
	}
	if e.Status >= 500 {
		return ErrInternal
	}
	return nil
}
