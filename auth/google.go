package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleProvider implements Provider against Google's OAuth endpoints for
// an installed application. The interactive flow starts a localhost callback
// server, prints the consent URL, and waits for the redirect.
type GoogleProvider struct {
	config *oauth2.Config
	logger *log.Logger

	// ListenAddr is the callback listener address. An empty value binds
	// 127.0.0.1 on an ephemeral port.
	ListenAddr string
	// ConsentTimeout bounds how long the interactive flow waits for the
	// user to complete consent in the browser.
	ConsentTimeout time.Duration
}

// NewGoogleProvider creates a provider from an installed-app client secret
// JSON file of the kind downloaded from the Google Cloud console.
func NewGoogleProvider(clientSecretPath string, scopes []string, logger *log.Logger) (*GoogleProvider, error) {
	if logger == nil {
		logger = log.Default()
	}

	data, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}

	return &GoogleProvider{
		config:         cfg,
		logger:         logger,
		ConsentTimeout: 5 * time.Minute,
	}, nil
}

// AuthorizeInteractive runs the localhost-callback consent flow and
// exchanges the authorization code for a credential.
func (p *GoogleProvider) AuthorizeInteractive(ctx context.Context, scopes []string) (*Credential, error) {
	addr := p.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("start callback listener: %w", err)
	}
	defer ln.Close()

	cfg := *p.config
	cfg.Scopes = scopes
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- errors.New("oauth state mismatch")
			return
		}
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			errCh <- fmt.Errorf("authorization denied: %s", errMsg)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("callback missing authorization code")
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		codeCh <- code
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	p.logger.Printf("auth: open the following URL in your browser to authorize:\n%s", authURL)

	timeout := p.ConsentTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for authorization")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	p.logger.Printf("auth: retrieved credentials from server")
	return FromToken(tok, scopes), nil
}

// Refresh renews the credential using its refresh token. An invalid_grant
// response from the token endpoint means the refresh token was revoked or
// expired; that case is reported as ErrRefreshRevoked so the caller can
// fall back to interactive authorization.
func (p *GoogleProvider) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred == nil || cred.RefreshToken == "" {
		return nil, ErrRefreshRevoked
	}

	// Hand the token source an expired token so it refreshes immediately.
	stale := cred.Token()
	stale.Expiry = time.Now().Add(-time.Minute)

	tok, err := p.config.TokenSource(ctx, stale).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant" {
			return nil, fmt.Errorf("%w: %v", ErrRefreshRevoked, err)
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	renewed := FromToken(tok, cred.Scopes)
	if renewed.RefreshToken == "" {
		// Google omits the refresh token on renewal; carry the old one.
		renewed.RefreshToken = cred.RefreshToken
	}
	return renewed, nil
}
