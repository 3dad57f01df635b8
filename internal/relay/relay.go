// Package relay runs the per-navigation session cycle: refresh the session
// cookies against the hosted store, resolve the user, and decide whether
// the navigation may proceed.
package relay

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zakzackr/knowme/internal/session"
	"github.com/zakzackr/knowme/middleware"
)

// Relay refreshes session cookies between the incoming request and the
// outgoing response. It is a faithful pass-through: every cookie write
// comes from the store, none from the relay itself.
type Relay struct {
	store session.Store
}

// New creates a Relay over the given store client.
func New(store session.Store) *Relay {
	return &Relay{store: store}
}

// Refresh runs one cookie-aware session cycle for the request.
//
// The returned Forward carries the cookie writes the store instructed and
// the updated request whose cookie view already includes them; both must be
// used as-is for the remainder of the navigation. The user is nil when no
// valid session exists. Store transport failures resolve to an anonymous
// user, never to a fabricated one.
func (rl *Relay) Refresh(r *http.Request) (*Forward, *session.User) {
	ctx, span := middleware.StartSpan(r.Context(), "relay.refresh", trace.WithAttributes(
		attribute.String("layer", "relay"),
		attribute.String("path", r.URL.Path),
	))
	defer span.End()

	fwd := newForward(r.WithContext(ctx))

	claims, err := rl.store.Claims(ctx, fwd)
	if err != nil {
		span.RecordError(err)
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Session store unavailable, continuing anonymous")
		middleware.ObserveSessionRefresh("error")
		return fwd, nil
	}
	if claims == nil {
		span.SetAttributes(attribute.Bool("session.present", false))
		middleware.ObserveSessionRefresh("anonymous")
		return fwd, nil
	}

	user := session.UserFromClaims(claims)
	span.SetAttributes(attribute.Bool("session.present", true), attribute.String("user.id", user.ID))
	middleware.ObserveSessionRefresh("user")
	return fwd, user
}

// Forward is the pass-through response state of one navigation: the updated
// request and the ordered cookie writes that must be applied, in full, to
// whatever response is ultimately sent.
type Forward struct {
	request *http.Request
	writes  []*http.Cookie
}

func newForward(r *http.Request) *Forward {
	return &Forward{request: r}
}

// NewForward builds a pass-through for handlers that run their own store
// calls outside the navigation middleware (the auth routes).
func NewForward(r *http.Request) *Forward {
	return newForward(r)
}

// Request returns the request whose cookie view includes every write that
// happened during the refresh cycle.
func (f *Forward) Request() *http.Request {
	return f.request
}

// Cookies returns the pending cookie writes, one per cookie name, options
// intact.
func (f *Forward) Cookies() []*http.Cookie {
	return f.writes
}

// Apply copies the full cookie jar onto the response. Applying a subset
// would desync the browser's and server's session state, so there is no
// per-cookie variant.
func (f *Forward) Apply(w http.ResponseWriter) {
	for _, c := range f.writes {
		http.SetCookie(w, c)
	}
}

// GetAll implements session.CookieSource over the request's cookie view.
func (f *Forward) GetAll() []*http.Cookie {
	return f.request.Cookies()
}

// SetAll implements session.CookieSource. Each write is mirrored onto the
// request's cookie view (for the remainder of this navigation) and recorded
// for the response, replacing any earlier write of the same name so the
// response carries exactly one cookie per name.
func (f *Forward) SetAll(cookies []*http.Cookie) {
	for _, c := range cookies {
		f.mirrorOnRequest(c)
		f.record(c)
	}
}

func (f *Forward) mirrorOnRequest(c *http.Cookie) {
	existing := f.request.Cookies()
	f.request.Header.Del("Cookie")
	replaced := false
	for _, rc := range existing {
		if rc.Name == c.Name {
			if c.MaxAge >= 0 && c.Value != "" {
				f.request.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
			}
			replaced = true
			continue
		}
		f.request.AddCookie(rc)
	}
	if !replaced && c.MaxAge >= 0 && c.Value != "" {
		f.request.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func (f *Forward) record(c *http.Cookie) {
	for i, w := range f.writes {
		if w.Name == c.Name {
			f.writes[i] = c
			return
		}
	}
	f.writes = append(f.writes, c)
}

// Request-scoped user, set by the middleware after a successful resolve.
type userContextKey struct{}

// WithUser attaches the resolved user to the context.
func WithUser(ctx context.Context, u *session.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext extracts the resolved user from the context, if any.
func UserFromContext(ctx context.Context) (*session.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*session.User)
	return u, ok
}
