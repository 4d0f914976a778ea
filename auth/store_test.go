package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ytlatest/storage"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "token.json")
	store := NewFileStore(path)
	ctx := context.Background()

	want := &Credential{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		Expiry:       time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.readonly"},
		Valid:        true,
	}

	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.AccessToken != want.AccessToken {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, want.AccessToken)
	}
	if got.RefreshToken != want.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, want.RefreshToken)
	}
	if !got.Expiry.Equal(want.Expiry) {
		t.Errorf("Expiry = %v, want %v", got.Expiry, want.Expiry)
	}
	if len(got.Scopes) != 1 || got.Scopes[0] != want.Scopes[0] {
		t.Errorf("Scopes = %v, want %v", got.Scopes, want.Scopes)
	}
	if !got.Valid {
		t.Error("Valid flag lost in round trip")
	}
}

func TestFileStore_LoadAbsentIsNotFound(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := store.Load(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store := NewFileStore(path)
	_, err := store.Load(context.Background())
	if !errors.Is(err, storage.ErrStorageCorrupt) {
		t.Errorf("Load() error = %v, want ErrStorageCorrupt", err)
	}
}

func TestFileStore_SaveRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewFileStore(path)

	if err := store.Save(context.Background(), freshCredential()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credential file mode = %o, want 0600", perm)
	}
}

func TestCredential_Usable(t *testing.T) {
	tests := []struct {
		name string
		cred *Credential
		want bool
	}{
		{"nil", nil, false},
		{"fresh", freshCredential(), true},
		{"expired", expiredCredential(), false},
		{"invalid flag", func() *Credential {
			c := freshCredential()
			c.Valid = false
			return c
		}(), false},
		{"no access token", func() *Credential {
			c := freshCredential()
			c.AccessToken = ""
			return c
		}(), false},
		{"zero expiry", func() *Credential {
			c := freshCredential()
			c.Expiry = time.Time{}
			return c
		}(), false},
		{"expires within skew", func() *Credential {
			c := freshCredential()
			c.Expiry = time.Now().Add(5 * time.Second)
			return c
		}(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Usable(); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}
