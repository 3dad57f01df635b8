// Package session provides the client contract for the hosted session store.
//
// The store owns credentials, token issuance and refresh; this package only
// consumes it. "No session" is an expected, frequent condition and is
// reported as a nil value, never as an error. Errors are reserved for
// transport and infrastructure failures.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRole is assigned whenever the role claim is missing or empty.
const DefaultRole = "user"

// Claims are the verified assertions carried by a store access token.
type Claims struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// User is the resolved user derived from verified claims. It is constructed
// fresh per request and never persisted.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role"`
}

// UserFromClaims builds a User from verified claims.
// The role defaults to DefaultRole; it is never left unset.
func UserFromClaims(c *Claims) *User {
	role := c.Role
	if role == "" {
		role = DefaultRole
	}
	return &User{
		ID:        c.Subject,
		Username:  c.Username,
		AvatarURL: c.AvatarURL,
		Role:      role,
	}
}

// Session is the token pair issued by the store, together with the claims
// verified from its access token.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       *Claims
}

// User resolves the session's user. Returns nil when the session carries no
// verified claims.
func (s *Session) User() *User {
	if s == nil || s.Claims == nil {
		return nil
	}
	return UserFromClaims(s.Claims)
}

// Event identifies an auth-state change notification.
type Event string

const (
	// EventInitial carries the state resolved by a subscriber's first
	// query at mount time. The store client never emits it; subscribers
	// deliver it to themselves.
	EventInitial Event = "initial"

	EventSignedIn       Event = "signed_in"
	EventSignedOut      Event = "signed_out"
	EventTokenRefreshed Event = "token_refreshed"
)

// Listener receives auth-state change notifications. The session is nil for
// signed-out notifications.
type Listener func(event Event, sess *Session)
