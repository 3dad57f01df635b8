// Package authx holds the process-wide authentication state machine used by
// UI embeddings: the current user, the loading flag, the login prompt, and
// the pending-action slot that resumes a gated action after login.
package authx

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zakzackr/knowme/internal/api"
	"github.com/zakzackr/knowme/internal/session"
)

// Facade is the UI-facing auth object. State moves from Loading to either
// Anonymous or Authenticated, driven by one initial store query and the
// store's auth-state notifications.
//
// The mutex only guards field access. Concurrent Login/Signup/Logout calls
// are not serialized: both run, and the last store notification to arrive
// wins. That race is part of the contract, not a bug to lock away.
type Facade struct {
	store   session.Store
	client  *api.Client
	cookies session.CookieSource

	mu            sync.Mutex
	user          *session.User
	loading       bool
	promptVisible bool
	pending       func() error
	unsubscribe   func()
}

// New constructs a Facade in the Loading state. Call Mount before use and
// Close at teardown.
func New(store session.Store, client *api.Client, cookies session.CookieSource) *Facade {
	return &Facade{
		store:   store,
		client:  client,
		cookies: cookies,
		loading: true,
	}
}

// Mount queries the store once for the current user and subscribes to
// auth-state notifications for the facade's lifetime. Any error on the
// initial query resolves to Anonymous; Loading clears either way.
func (f *Facade) Mount(ctx context.Context) {
	f.mu.Lock()
	if f.unsubscribe == nil {
		f.unsubscribe = f.store.Subscribe(f.onAuthChange)
	}
	f.mu.Unlock()

	claims, err := f.store.Claims(ctx, f.cookies)
	if err != nil {
		log.Warn().Err(err).Msg("Initial user query failed, starting anonymous")
		f.onAuthChange(session.EventInitial, nil)
		return
	}
	if claims == nil {
		f.onAuthChange(session.EventInitial, nil)
		return
	}
	f.onAuthChange(session.EventInitial, &session.Session{Claims: claims})
}

// Close releases the store subscription. The facade keeps its last state;
// it only stops receiving notifications.
func (f *Facade) Close() {
	f.mu.Lock()
	unsub := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// onAuthChange is the single store-notification entry point.
func (f *Facade) onAuthChange(_ session.Event, sess *session.Session) {
	f.applyUser(sess.User())
}

// applyUser installs the new auth state and fires the pending action when
// the state just became Authenticated. The action is taken out of the slot
// under the lock, so it runs exactly once; it executes outside the lock
// because it is arbitrary caller code.
func (f *Facade) applyUser(user *session.User) {
	f.mu.Lock()
	authenticated := f.user == nil && user != nil
	f.user = user
	f.loading = false

	var fire func() error
	if authenticated && f.pending != nil {
		fire = f.pending
		f.pending = nil
		f.promptVisible = false
	}
	f.mu.Unlock()

	if fire != nil {
		if err := fire(); err != nil {
			log.Warn().Err(err).Msg("Pending action failed after login")
		}
	}
}

// User returns the current user, or nil when anonymous or still loading.
func (f *Facade) User() *session.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

// IsLoading reports whether the initial user query has not yet resolved.
func (f *Facade) IsLoading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// LoginPromptVisible reports whether the login prompt is showing.
func (f *Facade) LoginPromptVisible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.promptVisible
}

// OpenLoginModal shows the login prompt.
func (f *Facade) OpenLoginModal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promptVisible = true
}

// CloseLoginModal hides the login prompt and clears any pending action.
// An abandoned prompt must not fire a stale action on a later login.
func (f *Facade) CloseLoginModal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promptVisible = false
	f.pending = nil
}

// SetPendingAction stores the deferred action, replacing any prior one
// without executing it. Pass nil to clear the slot.
func (f *Facade) SetPendingAction(fn func() error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = fn
}

// PendingAction returns the currently stored action, if any.
func (f *Facade) PendingAction() func() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Login delegates to the REST client and waits for completion. Failures
// propagate to the caller untouched; the resulting state change arrives
// through the store notification, not from here.
func (f *Facade) Login(ctx context.Context, email, password string) error {
	_, err := f.client.Login(ctx, email, password)
	return err
}

// Signup delegates to the REST client and waits for completion.
func (f *Facade) Signup(ctx context.Context, email, password, username string) error {
	_, err := f.client.Signup(ctx, email, password, username)
	return err
}

// Logout delegates to the REST client and waits for completion.
func (f *Facade) Logout(ctx context.Context) error {
	return f.client.Logout(ctx)
}
