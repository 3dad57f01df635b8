package session

import (
	"context"
	"net/http"
)

// CookieSource is the cookie view the store client reads from and writes
// through. Server-side it adapts an HTTP request/response pair; in-process
// callers use MemoryCookies.
//
// SetAll carries fully-formed cookies: name, value and every option. Callers
// applying them to a response must copy them verbatim; partial application
// desyncs the browser's and server's view of the session.
type CookieSource interface {
	GetAll() []*http.Cookie
	SetAll(cookies []*http.Cookie)
}

// Store is the contract of the hosted session store client.
//
// Claims is the cookie-aware read/refresh cycle run once per navigation:
// it reads the session from the cookie source, refreshes it against the
// store when expired, writes any resulting cookie changes back through the
// source, and returns the verified claims. (nil, nil) means "no session".
type Store interface {
	Claims(ctx context.Context, cookies CookieSource) (*Claims, error)
	SignIn(ctx context.Context, cookies CookieSource, email, password string) (*Session, error)
	SignUp(ctx context.Context, cookies CookieSource, email, password, username string) (*Session, error)
	SignOut(ctx context.Context, cookies CookieSource) error

	// Subscribe registers a listener for auth-state changes and returns its
	// unsubscribe function. The handle is a scoped resource: callers collect
	// it at setup and invoke it at teardown.
	Subscribe(l Listener) (unsubscribe func())
}

// MemoryCookies is an in-process CookieSource backed by a slice, playing the
// role the browser's cookie jar plays for a server-side request.
type MemoryCookies struct {
	cookies []*http.Cookie
}

// NewMemoryCookies returns an empty in-memory cookie source.
func NewMemoryCookies() *MemoryCookies {
	return &MemoryCookies{}
}

// GetAll returns the current cookies.
func (m *MemoryCookies) GetAll() []*http.Cookie {
	return m.cookies
}

// SetAll applies writes, replacing same-named cookies and honoring
// deletion (Max-Age < 0 or empty value with an expiry in the past).
func (m *MemoryCookies) SetAll(cookies []*http.Cookie) {
	for _, c := range cookies {
		m.set(c)
	}
}

func (m *MemoryCookies) set(c *http.Cookie) {
	for i, existing := range m.cookies {
		if existing.Name == c.Name {
			if c.MaxAge < 0 {
				m.cookies = append(m.cookies[:i], m.cookies[i+1:]...)
			} else {
				m.cookies[i] = c
			}
			return
		}
	}
	if c.MaxAge >= 0 {
		m.cookies = append(m.cookies, c)
	}
}
