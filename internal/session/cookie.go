package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"
)

// storedSession is the JSON payload held by the session cookie: the token
// pair the store needs back on the next navigation. The cookie value is
// opaque to the browser; claims are never trusted from it without
// re-verification.
type storedSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// CookieCodec reads and writes the session cookie.
type CookieCodec struct {
	Name string

	// Secure is set on issued cookies outside local development.
	Secure bool
}

// read decodes the session cookie from the source. Returns nil when the
// cookie is absent; a malformed cookie is treated the same way, since the
// only recovery is signing in again.
func (cc CookieCodec) read(src CookieSource) *storedSession {
	for _, c := range src.GetAll() {
		if c.Name != cc.Name || c.Value == "" {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(c.Value)
		if err != nil {
			return nil
		}
		var s storedSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return &s
	}
	return nil
}

// write encodes the session and issues it through the source. The cookie
// lives for the refresh window (maxAge), not the access token lifetime.
func (cc CookieCodec) write(src CookieSource, s *storedSession, maxAge time.Duration) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	src.SetAll([]*http.Cookie{{
		Name:     cc.Name,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	}})
}

// clear removes the session cookie. Also used as the manual fallback when
// an explicit logout cannot reach the store: empty value, Max-Age 0,
// HttpOnly, SameSite Strict, Secure outside development.
func (cc CookieCodec) clear(src CookieSource) {
	src.SetAll([]*http.Cookie{cc.clearCookie()})
}

func (cc CookieCodec) clearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     cc.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // serializes as Max-Age=0
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
