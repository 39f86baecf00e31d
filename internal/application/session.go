// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// SessionSnapshot is a consistent read of the controller's state.
// Generation changes on every sign-in and sign-out.
type SessionSnapshot struct {
	State      model.SessionState
	Credential model.Credential
	Generation uint64
}

// SessionController owns the single cached credential. It holds a
// mutex-protected copy of what the credential store contains, so readers
// never touch the store after startup.
type SessionController struct {
	store      driven.CredentialStore
	auth       driven.AuthService
	deviceName string

	// opMu serializes Load, SignIn, SignOut and Verify so the store and the
	// cached state are always updated together.
	opMu sync.Mutex

	mu         sync.RWMutex
	state      model.SessionState
	cred       model.Credential
	generation uint64
}

// NewSessionController creates a controller in the Loading state. Call Load
// to resolve the initial state from the credential store.
func NewSessionController(store driven.CredentialStore, auth driven.AuthService, deviceName string) *SessionController {
	return &SessionController{
		store:      store,
		auth:       auth,
		deviceName: deviceName,
		state:      model.SessionLoading,
	}
}

// Load reads the credential store once. A stored credential yields
// Authenticated, absence yields Unauthenticated. A read failure is reported as
// a *model.StorageError and the controller falls back to Unauthenticated.
// No network call is made.
func (c *SessionController) Load(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cred, err := c.store.Get(ctx)
	if err != nil {
		c.transition(model.SessionUnauthenticated, "")
		slog.Warn("credential store unreadable, starting signed out", "error", err)
		return &model.StorageError{Op: "get", Err: err}
	}

	if cred.IsZero() {
		c.transition(model.SessionUnauthenticated, "")
		return nil
	}

	c.transition(model.SessionAuthenticated, cred)
	slog.Info("session restored", "credential", cred)
	return nil
}

// SignIn exchanges email and password for a credential, persists it and
// moves to Authenticated. Field-level rejections come back as
// *model.ValidationError, other failures as *model.AuthError or
// *model.NetworkError; the state is left unchanged in both cases. If the
// credential cannot be persisted the controller stays Unauthenticated and a
// *model.StorageError is returned.
func (c *SessionController) SignIn(ctx context.Context, email, password string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cred, err := c.auth.Login(ctx, model.LoginRequest{
		Email:      email,
		Password:   password,
		DeviceName: c.deviceName,
	})
	if err != nil {
		slog.Info("sign-in failed", "email", email, "error", err)
		return err
	}

	if err := c.store.Set(ctx, cred); err != nil {
		slog.Error("persisting credential failed", "error", err)
		return &model.StorageError{Op: "set", Err: err}
	}

	c.transition(model.SessionAuthenticated, cred)
	slog.Info("signed in", "email", email, "credential", cred)
	return nil
}

// SignOut clears the credential store and moves to Unauthenticated. The
// transition happens even when the clear fails; the failure is then returned
// as a *model.StorageError.
func (c *SessionController) SignOut(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	return c.signOutLocked(ctx)
}

func (c *SessionController) signOutLocked(ctx context.Context) error {
	err := c.store.Clear(ctx)
	c.transition(model.SessionUnauthenticated, "")

	if err != nil {
		slog.Error("clearing credential store failed", "error", err)
		return &model.StorageError{Op: "clear", Err: err}
	}

	slog.Info("signed out")
	return nil
}

// Verify asks the auth service who the cached credential belongs to. A 401
// means the credential was revoked server-side: the session is signed out and
// the *model.AuthError returned. Other failures leave the state unchanged.
func (c *SessionController) Verify(ctx context.Context) (*model.Account, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	snap := c.Snapshot()
	if snap.State != model.SessionAuthenticated {
		return nil, model.ErrNotAuthenticated
	}

	acct, err := c.auth.CurrentUser(ctx, snap.Credential)
	if err == nil {
		return acct, nil
	}

	var authErr *model.AuthError
	if errors.As(err, &authErr) && authErr.Status == http.StatusUnauthorized {
		slog.Warn("credential rejected by auth service, signing out")
		if clearErr := c.signOutLocked(ctx); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
	}
	return nil, err
}

// State returns the current session state.
func (c *SessionController) State() model.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns state, credential and generation under a single lock.
func (c *SessionController) Snapshot() SessionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SessionSnapshot{
		State:      c.state,
		Credential: c.cred,
		Generation: c.generation,
	}
}

// IsCurrent reports whether the session that produced generation gen is
// still the authenticated one.
func (c *SessionController) IsCurrent(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == model.SessionAuthenticated && c.generation == gen
}

func (c *SessionController) transition(state model.SessionState, cred model.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.cred = cred
	c.generation++
}
