package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/zakzackr/knowme/internal/session"
)

func testEngine(store *fakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(New(store), &Guard{
		ProtectedPrefixes: []string{"/dashboard", "/profile", "/articles/new", "/articles/edit"},
		AuthOnlyPaths:     []string{"/login", "/signup", "/register"},
		LoginPath:         "/login",
		HomePath:          "/",
	}))
	r.NoRoute(func(c *gin.Context) {
		user, _ := UserFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": user})
	})
	return r
}

func TestMiddlewareRedirectsAnonymousFromProtectedPage(t *testing.T) {
	r := testEngine(&fakeStore{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles/new", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/login" || loc.Query().Get("redirect") != "/articles/new" {
		t.Errorf("location = %q, want /login?redirect=/articles/new", rec.Header().Get("Location"))
	}
}

func TestMiddlewareRedirectsAuthenticatedFromLogin(t *testing.T) {
	r := testEngine(&fakeStore{claims: userClaims("user-1", "ramen_lover", "user")})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("location = %q, want /", loc)
	}
}

func TestMiddlewareCookiesRideRedirects(t *testing.T) {
	r := testEngine(&fakeStore{
		writes: []*http.Cookie{{Name: "knowme-session", Value: "rotated", Path: "/", MaxAge: 3600}},
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles/new", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "rotated" {
		t.Errorf("cookies = %v, want refreshed session on the redirect", cookies)
	}
}

func TestMiddlewareAllowsAndExposesUser(t *testing.T) {
	r := testEngine(&fakeStore{claims: userClaims("user-1", "ramen_lover", "user")})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles/42", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body == "" || body == `{"user":null}` {
		t.Errorf("body = %q, want resolved user", body)
	}
}

func TestMiddlewareSkipsStaticAndAPI(t *testing.T) {
	store := &fakeStore{}
	r := gin.New()
	calls := 0
	rl := New(&countingStore{fakeStore: store, calls: &calls})
	r.Use(Middleware(rl, &Guard{LoginPath: "/login", HomePath: "/"}))
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/static/app.css", "/assets/logo.svg", "/images/a.png", "/favicon.ico", "/api/auth/login"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	if calls != 0 {
		t.Errorf("store called %d times on skip paths, want 0", calls)
	}
}

type countingStore struct {
	*fakeStore
	calls *int
}

func (c *countingStore) Claims(ctx context.Context, cookies session.CookieSource) (*session.Claims, error) {
	*c.calls++
	return c.fakeStore.Claims(ctx, cookies)
}
