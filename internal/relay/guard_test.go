package relay

import (
	"net/url"
	"strings"
	"testing"

	"github.com/zakzackr/knowme/internal/session"
)

func testGuard() *Guard {
	return &Guard{
		ProtectedPrefixes: []string{"/dashboard", "/profile", "/articles/new", "/articles/edit"},
		AuthOnlyPaths:     []string{"/login", "/signup", "/register"},
		LoginPath:         "/login",
		HomePath:          "/",
	}
}

func TestGuardProtectedPathsAnonymous(t *testing.T) {
	guard := testGuard()

	for _, path := range []string{
		"/dashboard",
		"/dashboard/settings",
		"/profile/me",
		"/articles/new",
		"/articles/edit/42",
	} {
		d := guard.Decide(path, nil)
		if d.Allow {
			t.Errorf("%s: expected redirect for anonymous user", path)
			continue
		}
		if !strings.HasPrefix(d.RedirectURL, "/login?") {
			t.Errorf("%s: redirect = %q, want login path", path, d.RedirectURL)
			continue
		}
		u, err := url.Parse(d.RedirectURL)
		if err != nil {
			t.Fatalf("%s: parse redirect: %v", path, err)
		}
		if got := u.Query().Get("redirect"); got != path {
			t.Errorf("%s: redirect param = %q, want original path", path, got)
		}
	}
}

func TestGuardAuthOnlyPathsAuthenticated(t *testing.T) {
	guard := testGuard()

	// Regardless of role.
	for _, user := range []*session.User{
		{ID: "u1", Username: "a", Role: "user"},
		{ID: "u2", Username: "b", Role: "admin"},
	} {
		for _, path := range []string{"/login", "/signup", "/register"} {
			d := guard.Decide(path, user)
			if d.Allow || d.RedirectURL != "/" {
				t.Errorf("%s (%s): decision = %+v, want redirect home", path, user.Role, d)
			}
		}
	}
}

func TestGuardAllows(t *testing.T) {
	guard := testGuard()

	cases := []struct {
		path string
		user *session.User
	}{
		{"/", nil},
		{"/articles/42", nil},
		{"/login", nil}, // guests may see login
		{"/dashboard", &session.User{ID: "u1", Role: "user"}},
		{"/articles/42", &session.User{ID: "u1", Role: "user"}},
	}
	for _, tc := range cases {
		if d := guard.Decide(tc.path, tc.user); !d.Allow {
			t.Errorf("%s: decision = %+v, want allow", tc.path, d)
		}
	}
}

func TestGuardRuleOrder(t *testing.T) {
	// A path in both sets takes the login redirect for an anonymous user.
	guard := testGuard()
	guard.ProtectedPrefixes = append(guard.ProtectedPrefixes, "/login")

	d := guard.Decide("/login", nil)
	if d.Allow || !strings.HasPrefix(d.RedirectURL, "/login?") {
		t.Errorf("decision = %+v, want login redirect (rule 1 first)", d)
	}
}
