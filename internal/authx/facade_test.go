package authx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zakzackr/knowme/internal/api"
	"github.com/zakzackr/knowme/internal/session"
)

// fakeStore lets tests drive the facade through notifications, the way the
// real client does after sign-in and refresh.
type fakeStore struct {
	mu        sync.Mutex
	claims    *session.Claims
	claimsErr error
	listeners []session.Listener
}

func (f *fakeStore) Claims(ctx context.Context, cookies session.CookieSource) (*session.Claims, error) {
	return f.claims, f.claimsErr
}

func (f *fakeStore) SignIn(ctx context.Context, cookies session.CookieSource, email, password string) (*session.Session, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeStore) SignUp(ctx context.Context, cookies session.CookieSource, email, password, username string) (*session.Session, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeStore) SignOut(ctx context.Context, cookies session.CookieSource) error {
	return nil
}

func (f *fakeStore) Subscribe(l session.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
	i := len(f.listeners) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listeners[i] = nil
	}
}

func (f *fakeStore) emit(event session.Event, sess *session.Session) {
	f.mu.Lock()
	ls := append([]session.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		if l != nil {
			l(event, sess)
		}
	}
}

func signedInSession(id, username string) *session.Session {
	return &session.Session{
		Claims: &session.Claims{
			Username:         username,
			RegisteredClaims: jwt.RegisteredClaims{Subject: id},
		},
	}
}

func mounted(t *testing.T, store *fakeStore) *Facade {
	t.Helper()
	f := New(store, api.NewClient("http://gateway.invalid", nil), session.NewMemoryCookies())
	f.Mount(context.Background())
	t.Cleanup(f.Close)
	return f
}

func TestMountResolvesLoading(t *testing.T) {
	f := New(&fakeStore{}, api.NewClient("http://gateway.invalid", nil), session.NewMemoryCookies())
	if !f.IsLoading() {
		t.Error("facade should start in Loading")
	}
	f.Mount(context.Background())
	defer f.Close()

	if f.IsLoading() {
		t.Error("Loading should clear after mount")
	}
	if f.User() != nil {
		t.Error("expected Anonymous without a session")
	}
}

func TestMountWithExistingSession(t *testing.T) {
	store := &fakeStore{claims: &session.Claims{
		Username:         "ramen_lover",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}}
	f := mounted(t, store)

	u := f.User()
	if u == nil || u.ID != "user-1" || u.Role != session.DefaultRole {
		t.Errorf("user = %+v", u)
	}
}

func TestMountDeliversInitialStateAsNotification(t *testing.T) {
	store := &fakeStore{claims: &session.Claims{
		Username:         "ramen_lover",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}}
	f := New(store, api.NewClient("http://gateway.invalid", nil), session.NewMemoryCookies())

	ran := false
	f.SetPendingAction(func() error { ran = true; return nil })

	f.Mount(context.Background())
	defer f.Close()

	// The initial resolution runs through the same state transition as a
	// signed-in notification, so an already-present session fires the
	// pending action.
	if !ran {
		t.Error("pending action did not fire on mount with an existing session")
	}
	if f.PendingAction() != nil {
		t.Error("slot not cleared after firing")
	}
}

func TestMountErrorResolvesAnonymous(t *testing.T) {
	f := mounted(t, &fakeStore{claimsErr: session.ErrStoreUnavailable})
	if f.IsLoading() || f.User() != nil {
		t.Error("store error on mount must resolve to Anonymous, not Loading")
	}
}

func TestNotificationsDriveState(t *testing.T) {
	store := &fakeStore{}
	f := mounted(t, store)

	store.emit(session.EventSignedIn, signedInSession("user-1", "ramen_lover"))
	if u := f.User(); u == nil || u.Username != "ramen_lover" {
		t.Errorf("user = %+v, want authenticated", u)
	}

	store.emit(session.EventSignedOut, nil)
	if f.User() != nil {
		t.Error("expected Anonymous after signed_out")
	}
}

func TestPendingActionReplaced(t *testing.T) {
	store := &fakeStore{}
	f := mounted(t, store)

	var firstRan, secondRan bool
	f.SetPendingAction(func() error { firstRan = true; return nil })
	f.SetPendingAction(func() error { secondRan = true; return nil })

	store.emit(session.EventSignedIn, signedInSession("user-1", "a"))

	if firstRan {
		t.Error("replaced action must never run")
	}
	if !secondRan {
		t.Error("stored action did not fire on authentication")
	}
}

func TestPendingActionFiresExactlyOnce(t *testing.T) {
	store := &fakeStore{}
	f := mounted(t, store)
	f.OpenLoginModal()

	runs := 0
	f.SetPendingAction(func() error { runs++; return nil })

	store.emit(session.EventSignedIn, signedInSession("user-1", "a"))
	// A follow-up refresh notification must not re-fire the action.
	store.emit(session.EventTokenRefreshed, signedInSession("user-1", "a"))

	if runs != 1 {
		t.Errorf("action ran %d times, want 1", runs)
	}
	if f.PendingAction() != nil {
		t.Error("slot not cleared after firing")
	}
	if f.LoginPromptVisible() {
		t.Error("login prompt should close after the action fires")
	}
}

func TestPendingActionNeverFiresAnonymous(t *testing.T) {
	store := &fakeStore{}
	f := mounted(t, store)

	f.SetPendingAction(func() error {
		t.Error("action fired without a user")
		return nil
	})
	store.emit(session.EventSignedOut, nil)
}

func TestCloseLoginModalClearsPendingAction(t *testing.T) {
	store := &fakeStore{}
	f := mounted(t, store)

	f.OpenLoginModal()
	f.SetPendingAction(func() error {
		t.Error("abandoned action must not fire")
		return nil
	})
	f.CloseLoginModal()

	if f.PendingAction() != nil {
		t.Error("pending action survived CloseLoginModal")
	}
	// A later login must not resurrect it.
	store.emit(session.EventSignedIn, signedInSession("user-1", "a"))
}

func TestLoginFailurePropagatesAndStaysAnonymous(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    api.CodeAuthentication,
			"message": "メールアドレスまたはパスワードが正しくありません",
		})
	}))
	defer gateway.Close()

	store := &fakeStore{}
	f := New(store, api.NewClient(gateway.URL, nil), session.NewMemoryCookies())
	f.Mount(context.Background())
	defer f.Close()

	err := f.Login(context.Background(), "a@b.com", "badpass")
	if !errors.Is(err, api.ErrAuthentication) {
		t.Errorf("err = %v, want ErrAuthentication", err)
	}
	if f.User() != nil {
		t.Error("failed login must leave the facade Anonymous")
	}
}

func TestCloseStopsNotifications(t *testing.T) {
	store := &fakeStore{}
	f := mounted(t, store)
	f.Close()

	store.emit(session.EventSignedIn, signedInSession("user-1", "a"))
	if f.User() != nil {
		t.Error("closed facade must not receive notifications")
	}
}

func TestFromContextPanicsUnprovisioned(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FromContext outside WithFacade must panic")
		}
	}()
	FromContext(context.Background())
}

func TestFromContextRoundTrip(t *testing.T) {
	f := New(&fakeStore{}, api.NewClient("http://gateway.invalid", nil), session.NewMemoryCookies())
	ctx := WithFacade(context.Background(), f)
	if FromContext(ctx) != f {
		t.Error("FromContext returned a different facade")
	}
}
