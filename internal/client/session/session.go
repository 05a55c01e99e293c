// Package session owns the authoritative answer to "who is the current
// user" for this process. It restores a persisted credential at startup,
// runs sign-in, registration, and sign-out against the identity API, and
// reacts to out-of-band invalidation deliveries, keeping the credential
// slot and the in-memory state in agreement.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/arodchenko/inkwell/internal/client/backend"
	"github.com/arodchenko/inkwell/internal/client/credentials"
	"github.com/arodchenko/inkwell/internal/client/models"
	"github.com/arodchenko/inkwell/internal/client/signal"
	"github.com/arodchenko/inkwell/internal/logging"
	"github.com/arodchenko/inkwell/internal/tokenx"
)

// ExpiredMessage is the user-facing error set when an invalidation
// delivery resets the session.
const ExpiredMessage = "Session expired. Please log in again."

// State is the observable session triple. User is nil when signed out,
// Loading is true while an operation is in flight, Err is "" when there
// is nothing to show. Consumers read copies and never mutate.
type State struct {
	User    *models.User
	Loading bool
	Err     string
}

// Manager is the session state machine.
//
// Operations may be initiated concurrently; no lock is held across
// backend I/O. Each completion commits its outcome atomically, so the
// last completion to run determines the final state ("last completion
// wins"). Stale completions still apply their effects; callers that no
// longer care about a result simply ignore it.
type Manager struct {
	backend backend.Client
	store   credentials.Store
	log     logging.Logger

	mu    sync.Mutex
	state State

	restoreOnce sync.Once
	unsubscribe func()

	now func() time.Time
}

// NewManager wires the state machine to its collaborators and subscribes
// the invalidation handler exactly once for the process lifetime. The
// initial state is "restoring": no user, loading, no error.
func NewManager(b backend.Client, store credentials.Store, bus *signal.Bus, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	m := &Manager{
		backend: b,
		store:   store,
		log:     log.With("component", "session"),
		state:   State{Loading: true},
		now:     time.Now,
	}
	if bus != nil {
		m.unsubscribe = bus.Subscribe(m.handleInvalidation)
	}
	return m
}

// State returns a copy of the current triple.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Restore converts the persisted credential, if any, into a live session.
// It runs at most once; later calls are no-ops. Every exit path leaves
// Loading false. Failures here mean a stale or revoked credential, not a
// user action, so they are swallowed: the outcome is simply "signed out"
// and the slot is cleared.
func (m *Manager) Restore(ctx context.Context) {
	m.restoreOnce.Do(func() { m.restore(ctx) })
}

func (m *Manager) restore(ctx context.Context) {
	tok, err := m.store.Get(ctx)
	if err != nil {
		m.log.Warn(ctx, "credential store unreadable, starting signed out", "error", err)
		m.commit(State{})
		return
	}
	if tok == "" {
		m.commit(State{})
		return
	}

	// An already-expired token cannot resolve to a user; skip the
	// network round-trip and reap the slot.
	if tokenx.Expired(tok, m.now()) {
		m.log.Info(ctx, "stored credential expired, clearing")
		m.discardCredential(ctx)
		m.commit(State{})
		return
	}

	m.backend.SetCredential(tok)

	u, err := m.backend.CurrentUser(ctx)
	if err != nil || u == nil {
		if err != nil {
			m.log.Info(ctx, "session restore failed, clearing credential", "error", err)
		}
		m.discardCredential(ctx)
		m.commit(State{})
		return
	}

	m.log.Info(ctx, "session restored", "user", u.Username)
	m.commit(State{User: u})
}

// Login authenticates the email/password pair. On success the issued
// credential is persisted and the session becomes authenticated. On
// failure the user slot is left unchanged (a signed-in user stays signed
// in), Err carries a human-readable message, and the error is returned
// so a form can react synchronously. Loading is false on every exit path.
func (m *Manager) Login(ctx context.Context, email string, password []byte) (*models.User, error) {
	m.begin()

	u, tok, err := m.backend.Login(ctx, email, password)
	if err != nil {
		m.fail(err)
		return nil, err
	}

	m.persistCredential(ctx, tok)
	m.commit(State{User: u})
	return u, nil
}

// Register creates a new account. The contract mirrors Login: success
// authenticates, failure surfaces a message and returns the error.
func (m *Manager) Register(ctx context.Context, fields models.RegistrationFields) (*models.User, error) {
	m.begin()

	u, tok, err := m.backend.Register(ctx, fields)
	if err != nil {
		m.fail(err)
		return nil, err
	}

	m.persistCredential(ctx, tok)
	m.commit(State{User: u})
	return u, nil
}

// Logout signs out unconditionally. The remote revocation is
// fire-and-forget: its failure is logged and never blocks or undoes the
// local sign-out, because local state is the source of truth for "is
// this client authenticated". The revocation request authenticates with
// the installed credential, so the backend slot is cleared by the
// goroutine only after the request has gone out; the persisted slot and
// the in-memory state are torn down synchronously. Idempotent.
func (m *Manager) Logout(ctx context.Context) {
	go func() {
		rctx := context.WithoutCancel(ctx)
		if err := m.backend.Logout(rctx); err != nil {
			m.log.Warn(rctx, "remote logout failed", "error", err)
		}
		m.backend.SetCredential("")
	}()

	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn(ctx, "failed to clear credential store", "error", err)
	}
	m.commit(State{})
}

// Close detaches the invalidation handler. State remains readable.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// handleInvalidation is the out-of-band transition: the credential must
// no longer be trusted, whatever else is in flight. It resets the user
// and surfaces the expiry message; the persisted slot is left for the
// next restoration to reap. No I/O happens here: the handler runs on
// the bus dispatch goroutine.
func (m *Manager) handleInvalidation(reason string) {
	m.mu.Lock()
	m.state.User = nil
	m.state.Err = ExpiredMessage
	m.mu.Unlock()

	m.log.Info(context.Background(), "session invalidated", "reason", reason)
}

// begin marks an operation in flight: loading, previous error cleared.
func (m *Manager) begin() {
	m.mu.Lock()
	m.state.Loading = true
	m.state.Err = ""
	m.mu.Unlock()
}

// commit replaces the triple wholesale; the operation is no longer in
// flight.
func (m *Manager) commit(s State) {
	s.Loading = false
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// fail records an operation failure: message set, user untouched.
func (m *Manager) fail(err error) {
	msg := errorMessage(err)
	m.mu.Lock()
	m.state.Loading = false
	m.state.Err = msg
	m.mu.Unlock()
}

// persistCredential updates the store and the backend together so the
// in-memory session and the persisted slot agree. A store failure only
// costs durability across restarts, so it is logged, not surfaced.
func (m *Manager) persistCredential(ctx context.Context, tok string) {
	m.backend.SetCredential(tok)
	if err := m.store.Set(ctx, tok); err != nil {
		m.log.Warn(ctx, "failed to persist credential, session will not survive restart", "error", err)
	}
}

func (m *Manager) discardCredential(ctx context.Context) {
	m.backend.SetCredential("")
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn(ctx, "failed to clear credential store", "error", err)
	}
}

// errorMessage derives the user-facing text for an operation failure.
func errorMessage(err error) string {
	var verr *backend.ValidationError
	switch {
	case errors.As(err, &verr):
		return strings.Join(verr.Messages(), "; ")
	case errors.Is(err, backend.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, backend.ErrUnavailable):
		return "Cannot reach the server. Please try again."
	default:
		return err.Error()
	}
}
