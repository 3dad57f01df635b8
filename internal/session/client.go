package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zakzackr/knowme/middleware"
)

const (
	// defaultRefreshSkew refreshes the access token slightly before its
	// exp claim so a token never expires mid-request downstream.
	defaultRefreshSkew = 30 * time.Second

	// defaultCookieTTL is the refresh window: how long the cookie (and so
	// the refresh token) outlives the access token.
	defaultCookieTTL = 7 * 24 * time.Hour
)

// ClientOptions configures the hosted store client.
type ClientOptions struct {
	// StoreURL is the base URL of the hosted session store.
	StoreURL string

	// JWTPublicKey is the PEM-encoded key the store signs access tokens
	// with. ECDSA and RSA keys are accepted.
	JWTPublicKey string

	CookieName string

	// SecureCookies toggles the Secure attribute; false only in
	// local/development environments.
	SecureCookies bool

	// HTTPClient overrides the transport; nil uses a 10s-timeout default.
	HTTPClient *http.Client

	// RefreshSkew and CookieTTL override the defaults when non-zero.
	RefreshSkew time.Duration
	CookieTTL   time.Duration
}

// Client talks to the hosted session store and implements Store.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	parser      *jwt.Parser
	keyfunc     jwt.Keyfunc
	codec       CookieCodec
	refreshSkew time.Duration
	cookieTTL   time.Duration

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewClient builds a store client, parsing and pinning the token
// verification key up front so a bad key fails at startup, not per request.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.StoreURL == "" {
		return nil, fmt.Errorf("session: store URL is required")
	}
	key, methods, err := parsePublicKey([]byte(opts.JWTPublicKey))
	if err != nil {
		return nil, fmt.Errorf("session: parse store public key: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	refreshSkew := opts.RefreshSkew
	if refreshSkew == 0 {
		refreshSkew = defaultRefreshSkew
	}
	cookieTTL := opts.CookieTTL
	if cookieTTL == 0 {
		cookieTTL = defaultCookieTTL
	}
	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = "knowme-session"
	}

	return &Client{
		baseURL:    opts.StoreURL,
		httpClient: httpClient,
		parser:     jwt.NewParser(jwt.WithValidMethods(methods), jwt.WithExpirationRequired()),
		keyfunc: func(t *jwt.Token) (any, error) {
			return key, nil
		},
		codec:       CookieCodec{Name: cookieName, Secure: opts.SecureCookies},
		refreshSkew: refreshSkew,
		cookieTTL:   cookieTTL,
		listeners:   map[int]Listener{},
	}, nil
}

func parsePublicKey(pem []byte) (any, []string, error) {
	if key, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		return key, []string{"ES256", "ES384", "ES512"}, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, nil, err
	}
	return key, []string{"RS256", "RS384", "RS512"}, nil
}

// Claims runs one cookie-aware read/refresh cycle.
//
// The access token is verified locally against the store's public key; only
// when it is expired (or inside the refresh skew) does the client call the
// store's refresh grant, writing the new session cookie back through the
// source. A refresh the store rejects clears the cookie: the caller still
// sees a plain "no session", with the stale cookie gone from the response.
func (c *Client) Claims(ctx context.Context, cookies CookieSource) (*Claims, error) {
	ctx, span := middleware.StartSpan(ctx, "session.claims", trace.WithAttributes(
		attribute.String("layer", "session"),
	))
	defer span.End()

	stored := c.codec.read(cookies)
	if stored == nil {
		span.SetAttributes(attribute.Bool("session.present", false))
		return nil, nil
	}

	claims, err := c.verify(stored.AccessToken)
	if err == nil && time.Until(claims.ExpiresAt.Time) > c.refreshSkew {
		span.SetAttributes(attribute.Bool("session.refreshed", false))
		return claims, nil
	}

	// Expired or nearly so: one refresh grant against the store.
	sess, err := c.refresh(ctx, stored.RefreshToken)
	if err != nil {
		if refreshRejected(err) {
			// The store said no; the session is over. The clear must ride
			// this response so the browser stops sending a token the store
			// will never accept again.
			c.codec.clear(cookies)
			span.SetAttributes(attribute.Bool("session.present", false))
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	c.writeSession(cookies, sess)
	c.notify(EventTokenRefreshed, sess)
	span.SetAttributes(attribute.Bool("session.refreshed", true))
	return sess.Claims, nil
}

// SignIn exchanges credentials for a session via the password grant and
// issues the session cookie through the source.
func (c *Client) SignIn(ctx context.Context, cookies CookieSource, email, password string) (*Session, error) {
	ctx, span := middleware.StartSpan(ctx, "session.sign_in", trace.WithAttributes(
		attribute.String("layer", "session"),
	))
	defer span.End()

	sess, err := c.token(ctx, url.Values{"grant_type": {"password"}}, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.writeSession(cookies, sess)
	c.notify(EventSignedIn, sess)
	span.SetAttributes(attribute.Bool("auth.success", true))
	return sess, nil
}

// SignUp registers a new user. The username lands in the token claims;
// avatar starts empty and the role is the default.
func (c *Client) SignUp(ctx context.Context, cookies CookieSource, email, password, username string) (*Session, error) {
	ctx, span := middleware.StartSpan(ctx, "session.sign_up", trace.WithAttributes(
		attribute.String("layer", "session"),
	))
	defer span.End()

	body := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]string{
			"username":   username,
			"avatar_url": "",
			"role":       DefaultRole,
		},
	}
	sess, err := c.doAuth(ctx, c.baseURL+"/signup", body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.writeSession(cookies, sess)
	c.notify(EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the session at the store and clears the cookie. The
// cookie is cleared even when the store call fails: the user asked to be
// logged out locally, and the revocation failure is the caller's to log.
func (c *Client) SignOut(ctx context.Context, cookies CookieSource) error {
	ctx, span := middleware.StartSpan(ctx, "session.sign_out", trace.WithAttributes(
		attribute.String("layer", "session"),
	))
	defer span.End()

	stored := c.codec.read(cookies)

	var revokeErr error
	if stored != nil && stored.AccessToken != "" {
		revokeErr = c.revoke(ctx, stored.AccessToken)
		if revokeErr != nil {
			span.RecordError(revokeErr)
			zerolog.Ctx(ctx).Warn().Err(revokeErr).Msg("Store sign-out failed, clearing cookie anyway")
		}
	}

	c.codec.clear(cookies)
	c.notify(EventSignedOut, nil)
	return revokeErr
}

// Subscribe registers a listener for auth-state changes.
func (c *Client) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// ClearCookie exposes the manual fallback clear for callers that log a user
// out without a reachable store.
func (c *Client) ClearCookie(cookies CookieSource) {
	c.codec.clear(cookies)
}

func (c *Client) notify(event Event, sess *Session) {
	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()
	for _, l := range ls {
		l(event, sess)
	}
}

func (c *Client) writeSession(cookies CookieSource, sess *Session) {
	c.codec.write(cookies, &storedSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt.Unix(),
	}, c.cookieTTL)
}

func (c *Client) verify(accessToken string) (*Claims, error) {
	var claims Claims
	if _, err := c.parser.ParseWithClaims(accessToken, &claims, c.keyfunc); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.token(ctx, url.Values{"grant_type": {"refresh_token"}}, map[string]string{
		"refresh_token": refreshToken,
	})
}

func (c *Client) token(ctx context.Context, query url.Values, body map[string]string) (*Session, error) {
	return c.doAuth(ctx, c.baseURL+"/token?"+query.Encode(), body)
}

// tokenResponse is the store's token-endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// storeError is the store's non-2xx payload. Both the legacy
// {error, error_description} and the current {error_code, msg} shapes occur.
type storeError struct {
	Status    int    `json:"-"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
	Legacy    string `json:"error"`
	LegacyMsg string `json:"error_description"`
}

func (e *storeError) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return e.Legacy
}

func (e *storeError) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.LegacyMsg
}

func (e *storeError) Error() string {
	return fmt.Sprintf("session store: %s (%d)", e.code(), e.Status)
}

// Unwrap maps store error codes onto the package sentinels so callers can
// use errors.Is without knowing store wire codes.
func (e *storeError) Unwrap() error {
	switch e.code() {
	case "invalid_credentials", "invalid_grant":
		return ErrInvalidCredentials
	case "email_exists", "user_already_exists":
		return ErrEmailExists
	case "weak_password":
		return ErrWeakPassword
	}
	if e.Status >= 500 {
		return ErrStoreUnavailable
	}
	return nil
}

func (c *Client) doAuth(ctx context.Context, endpoint string, body any) (*Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("session: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("session: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session store request: %w: %w", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session store response: %w: %w", ErrStoreUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &storeError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, se)
		return nil, se
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("session store response: %w: %w", ErrStoreUnavailable, err)
	}

	claims, err := c.verify(tr.AccessToken)
	if err != nil {
		// A token the store just issued must verify; failure means key
		// misconfiguration, not a user problem.
		return nil, fmt.Errorf("verify issued token: %w: %w", ErrStoreUnavailable, err)
	}

	return &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		Claims:       claims,
	}, nil
}

func (c *Client) revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("session: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("session store request: %w: %w", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &storeError{Status: resp.StatusCode}
	}
	return nil
}

// refreshRejected reports whether a refresh failure means "session over"
// (store said no) rather than "store unreachable".
func refreshRejected(err error) bool {
	var se *storeError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status >= 400 && se.Status < 500
}
