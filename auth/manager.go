package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"ytlatest/storage"
)

// State is the credential lifecycle state.
type State int

const (
	// StateUnloaded means no load attempt has been made yet.
	StateUnloaded State = iota
	// StateLocalValid means a stored credential was loaded and is usable.
	StateLocalValid
	// StateLocalExpired means a stored credential was loaded but has expired.
	StateLocalExpired
	// StateAuthenticating means an interactive authorization is in progress.
	StateAuthenticating
	// StateFailed means credential obtainment failed irrecoverably.
	StateFailed
)

// String returns the state name for log output.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLocalValid:
		return "local-valid"
	case StateLocalExpired:
		return "local-expired"
	case StateAuthenticating:
		return "authenticating"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Manager owns the state machine that produces a valid credential for API
// calls. It is safe for concurrent use; the credential it returns is read
// only by callers, and persistence writes happen only inside Obtain.
type Manager struct {
	store    Store
	provider Provider
	scopes   []string
	logger   *log.Logger

	mu    sync.Mutex
	state State
	cred  *Credential
}

// NewManager creates a credential lifecycle manager. A nil logger falls back
// to the standard logger.
func NewManager(store Store, provider Provider, scopes []string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		store:    store,
		provider: provider,
		scopes:   scopes,
		logger:   logger,
		state:    StateUnloaded,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Obtain produces a usable credential, walking the lifecycle as needed:
// load from the store; if absent, authorize interactively; if expired,
// refresh; if the refresh token is revoked, fall back to interactive
// authorization. Every renewed credential is persisted before it is
// returned. A missing stored credential is the expected first-run path,
// not an error; any other store failure is fatal and surfaced unchanged
// so callers can distinguish persistence trouble from auth trouble.
func (m *Manager) Obtain(ctx context.Context) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred.Usable() {
		return m.cred, nil
	}

	cred, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.setState(StateFailed)
			return nil, err
		}
		m.logger.Printf("auth: no stored credential, starting interactive authorization")
		return m.authenticate(ctx)
	}

	if cred.Usable() {
		m.setState(StateLocalValid)
		m.cred = cred
		return cred, nil
	}

	m.setState(StateLocalExpired)
	m.logger.Printf("auth: stored credential expired, attempting refresh")

	renewed, err := m.provider.Refresh(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrRefreshRevoked) {
			m.logger.Printf("auth: refresh token revoked, falling back to interactive authorization")
			return m.authenticate(ctx)
		}
		m.setState(StateFailed)
		return nil, &AuthError{Stage: "refresh", Err: err}
	}

	m.logger.Printf("auth: refresh successful")
	if err := m.persist(ctx, renewed); err != nil {
		m.setState(StateFailed)
		return nil, err
	}

	m.setState(StateLocalValid)
	m.cred = renewed
	return renewed, nil
}

// authenticate runs the interactive flow and persists the result.
// Callers must hold m.mu.
func (m *Manager) authenticate(ctx context.Context) (*Credential, error) {
	m.setState(StateAuthenticating)

	cred, err := m.provider.AuthorizeInteractive(ctx, m.scopes)
	if err != nil {
		m.setState(StateFailed)
		return nil, &AuthError{Stage: "authorize", Err: err}
	}
	if !cred.Usable() {
		m.setState(StateFailed)
		return nil, &AuthError{Stage: "authorize", Err: fmt.Errorf("provider returned unusable credential")}
	}

	if err := m.persist(ctx, cred); err != nil {
		m.setState(StateFailed)
		return nil, err
	}

	m.setState(StateLocalValid)
	m.cred = cred
	return cred, nil
}

// persist saves the credential. The write is shielded from run-level
// cancellation: once started it completes, so the stored record is never
// left behind the credential actually in use.
func (m *Manager) persist(ctx context.Context, cred *Credential) error {
	m.logger.Printf("auth: writing credential to store")
	return m.store.Save(context.WithoutCancel(ctx), cred)
}

func (m *Manager) setState(next State) {
	if m.state == next {
		return
	}
	m.logger.Printf("auth: state %s -> %s", m.state, next)
	m.state = next
}
