package auth

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the external OAuth collaborator. Implementations talk to the
// remote authorization server; everything else in this package treats them
// as opaque.
type Provider interface {
	// AuthorizeInteractive runs the interactive consent flow and returns a
	// fresh credential carrying the requested scopes.
	AuthorizeInteractive(ctx context.Context, scopes []string) (*Credential, error)
	// Refresh renews the credential using its refresh token. A revoked or
	// expired refresh token is reported via ErrRefreshRevoked.
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// ErrRefreshRevoked indicates the refresh token was revoked or has expired
// and a full interactive authorization is required.
var ErrRefreshRevoked = errors.New("auth: refresh token revoked or expired")

// AuthError is the fatal failure mode of credential obtainment. It aborts
// the run: without a credential no work can proceed. Persistence failures
// are reported separately as storage errors so operators can tell
// "can't authenticate" from "can't persist".
type AuthError struct {
	// Stage names the lifecycle step that failed ("authorize", "refresh").
	Stage string
	// Err is the underlying provider error.
	Err error
}

// Error returns a string representation of the auth error.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *AuthError) Unwrap() error { return e.Err }
