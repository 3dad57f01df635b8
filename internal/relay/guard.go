package relay

import (
	"net/url"
	"strings"

	"github.com/zakzackr/knowme/internal/session"
)

// Decision is the guard's verdict for a navigation.
type Decision struct {
	Allow       bool
	RedirectURL string
}

// Guard decides page-level access from the requested path and the resolved
// user. It is a pure function of its inputs and performs no I/O.
type Guard struct {
	// ProtectedPrefixes require a signed-in user (prefix match).
	ProtectedPrefixes []string

	// AuthOnlyPaths are only for guests, e.g. login/signup (exact match).
	AuthOnlyPaths []string

	LoginPath string
	HomePath  string
}

// Decide maps (path, user) to allow-or-redirect.
//
// Rule 1: protected path without a user redirects to the login page with
// the original path in the redirect query parameter. Rule 2: auth-only path
// with a user redirects home. Rule 1 is evaluated first; a path matching
// both sets takes the login redirect.
func (g *Guard) Decide(path string, user *session.User) Decision {
	if user == nil {
		for _, prefix := range g.ProtectedPrefixes {
			if strings.HasPrefix(path, prefix) {
				q := url.Values{"redirect": {path}}
				return Decision{RedirectURL: g.LoginPath + "?" + q.Encode()}
			}
		}
	}

	if user != nil {
		for _, p := range g.AuthOnlyPaths {
			if path == p {
				return Decision{RedirectURL: g.HomePath}
			}
		}
	}

	return Decision{Allow: true}
}
