// Package auth owns the OAuth credential lifecycle: acquiring a credential
// interactively, persisting it, validating it, refreshing it, and falling
// back to a fresh interactive authorization when the refresh token is gone.
package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// expirySkew is subtracted from the expiry when judging usability so a
// credential is never handed out moments before it lapses mid-call.
const expirySkew = 30 * time.Second

// Credential is the persisted authentication record. The JSON round-trip
// preserves every field exactly.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
	Valid        bool      `json:"valid"`
}

// Usable reports whether the credential can back an API call right now:
// the validity flag is set and the expiry is safely in the future.
func (c *Credential) Usable() bool {
	if c == nil || !c.Valid || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(expirySkew).Before(c.Expiry)
}

// Token converts the credential to an oauth2 token for API clients.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
		TokenType:    "Bearer",
	}
}

// FromToken builds a credential record from a freshly obtained oauth2 token.
func FromToken(tok *oauth2.Token, scopes []string) *Credential {
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
		Valid:        tok.Valid(),
	}
}
