package auth

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"ytlatest/storage"
)

// fakeStore implements Store in memory.
type fakeStore struct {
	cred    *Credential
	loadErr error
	saveErr error
	saves   int
}

func (s *fakeStore) Load(ctx context.Context) (*Credential, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.cred == nil {
		return nil, &storage.StorageError{Op: "read", Entity: "credential", Err: storage.ErrNotFound}
	}
	return s.cred, nil
}

func (s *fakeStore) Save(ctx context.Context, cred *Credential) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.cred = cred
	return nil
}

// fakeProvider implements Provider with scripted outcomes.
type fakeProvider struct {
	authorizeCred *Credential
	authorizeErr  error
	authorizes    int

	refreshCred *Credential
	refreshErr  error
	refreshes   int
}

func (p *fakeProvider) AuthorizeInteractive(ctx context.Context, scopes []string) (*Credential, error) {
	p.authorizes++
	return p.authorizeCred, p.authorizeErr
}

func (p *fakeProvider) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	p.refreshes++
	return p.refreshCred, p.refreshErr
}

func freshCredential() *Credential {
	return &Credential{
		AccessToken:  "token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.readonly"},
		Valid:        true,
	}
}

func expiredCredential() *Credential {
	cred := freshCredential()
	cred.Expiry = time.Now().Add(-time.Hour)
	return cred
}

func newTestManager(store Store, provider Provider) *Manager {
	logger := log.New(testWriter{}, "", 0)
	return NewManager(store, provider, []string{"https://www.googleapis.com/auth/youtube.readonly"}, logger)
}

// testWriter swallows log output in tests.
type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestObtain_NoStoredCredentialAuthorizesOnce(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{authorizeCred: freshCredential()}
	m := newTestManager(store, provider)

	cred, err := m.Obtain(context.Background())
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}
	if !cred.Usable() {
		t.Error("Obtain() returned unusable credential")
	}
	if provider.authorizes != 1 {
		t.Errorf("authorizes = %d, want 1", provider.authorizes)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
	if m.State() != StateLocalValid {
		t.Errorf("State() = %v, want %v", m.State(), StateLocalValid)
	}
}

func TestObtain_StoredValidCredentialSkipsProvider(t *testing.T) {
	store := &fakeStore{cred: freshCredential()}
	provider := &fakeProvider{}
	m := newTestManager(store, provider)

	cred, err := m.Obtain(context.Background())
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}
	if cred.AccessToken != "token" {
		t.Errorf("AccessToken = %q, want stored token", cred.AccessToken)
	}
	if provider.authorizes != 0 || provider.refreshes != 0 {
		t.Errorf("provider touched: %d authorizes, %d refreshes, want 0/0",
			provider.authorizes, provider.refreshes)
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0 (valid credential should not be rewritten)", store.saves)
	}
}

func TestObtain_ExpiredRefreshesAndPersists(t *testing.T) {
	store := &fakeStore{cred: expiredCredential()}
	provider := &fakeProvider{refreshCred: freshCredential()}
	m := newTestManager(store, provider)

	cred, err := m.Obtain(context.Background())
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}
	if !cred.Usable() {
		t.Error("Obtain() returned unusable credential after refresh")
	}
	if provider.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", provider.refreshes)
	}
	if provider.authorizes != 0 {
		t.Errorf("authorizes = %d, want 0", provider.authorizes)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestObtain_RevokedRefreshFallsBackToInteractive(t *testing.T) {
	store := &fakeStore{cred: expiredCredential()}
	provider := &fakeProvider{
		refreshErr:    ErrRefreshRevoked,
		authorizeCred: freshCredential(),
	}
	m := newTestManager(store, provider)

	cred, err := m.Obtain(context.Background())
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}
	if !cred.Usable() {
		t.Error("Obtain() returned unusable credential")
	}
	if provider.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", provider.refreshes)
	}
	if provider.authorizes != 1 {
		t.Errorf("authorizes = %d, want exactly 1", provider.authorizes)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestObtain_NonRevokedRefreshFailureIsFatal(t *testing.T) {
	store := &fakeStore{cred: expiredCredential()}
	provider := &fakeProvider{refreshErr: errors.New("token endpoint unreachable")}
	m := newTestManager(store, provider)

	_, err := m.Obtain(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Obtain() error = %v, want *AuthError", err)
	}
	if authErr.Stage != "refresh" {
		t.Errorf("Stage = %q, want refresh", authErr.Stage)
	}
	if provider.authorizes != 0 {
		t.Errorf("authorizes = %d, want 0 (no fallback on transport failure)", provider.authorizes)
	}
	if m.State() != StateFailed {
		t.Errorf("State() = %v, want %v", m.State(), StateFailed)
	}
}

func TestObtain_AuthorizationFailureIsAuthError(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{authorizeErr: errors.New("consent denied")}
	m := newTestManager(store, provider)

	_, err := m.Obtain(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Obtain() error = %v, want *AuthError", err)
	}
	if authErr.Stage != "authorize" {
		t.Errorf("Stage = %q, want authorize", authErr.Stage)
	}
	if m.State() != StateFailed {
		t.Errorf("State() = %v, want %v", m.State(), StateFailed)
	}
}

func TestObtain_StoreIOFailureIsDistinctFromAuthFailure(t *testing.T) {
	store := &fakeStore{
		loadErr: &storage.StorageError{Op: "read", Entity: "credential", Err: errors.New("permission denied")},
	}
	provider := &fakeProvider{authorizeCred: freshCredential()}
	m := newTestManager(store, provider)

	_, err := m.Obtain(context.Background())
	if err == nil {
		t.Fatal("Obtain() error = nil, want storage error")
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		t.Errorf("store I/O failure surfaced as AuthError: %v", err)
	}
	var storErr *storage.StorageError
	if !errors.As(err, &storErr) {
		t.Errorf("Obtain() error = %v, want *storage.StorageError", err)
	}
	if provider.authorizes != 0 {
		t.Errorf("authorizes = %d, want 0 (I/O failure must not trigger auth)", provider.authorizes)
	}
}

func TestObtain_PersistFailureAfterAuthorizeIsFatal(t *testing.T) {
	saveErr := &storage.StorageError{Op: "write", Entity: "credential", Err: errors.New("disk full")}
	store := &fakeStore{saveErr: saveErr}
	provider := &fakeProvider{authorizeCred: freshCredential()}
	m := newTestManager(store, provider)

	_, err := m.Obtain(context.Background())
	var storErr *storage.StorageError
	if !errors.As(err, &storErr) {
		t.Fatalf("Obtain() error = %v, want *storage.StorageError", err)
	}
	if m.State() != StateFailed {
		t.Errorf("State() = %v, want %v", m.State(), StateFailed)
	}
}

func TestObtain_CachesCredentialWithinRun(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{authorizeCred: freshCredential()}
	m := newTestManager(store, provider)

	if _, err := m.Obtain(context.Background()); err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}
	if _, err := m.Obtain(context.Background()); err != nil {
		t.Fatalf("Obtain() second call error = %v", err)
	}
	if provider.authorizes != 1 {
		t.Errorf("authorizes = %d, want 1 (second Obtain should reuse)", provider.authorizes)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateUnloaded:       "unloaded",
		StateLocalValid:     "local-valid",
		StateLocalExpired:   "local-expired",
		StateAuthenticating: "authenticating",
		StateFailed:         "failed",
		State(99):           "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
