package auth

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"ytlatest/storage"
)

const storeLockTimeout = 5 * time.Second

// Store persists and loads the credential record. Load returns an error
// wrapping storage.ErrNotFound when no record has been saved yet; that is
// the expected first-run condition, not a failure.
type Store interface {
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
}

// FileStore keeps the credential record in a single JSON file, written
// atomically under an advisory file lock.
type FileStore struct {
	path string
}

// NewFileStore creates a credential store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the credential record from disk.
func (s *FileStore) Load(ctx context.Context) (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &storage.StorageError{Op: "read", Entity: "credential", ID: s.path, Err: storage.ErrNotFound}
		}
		return nil, &storage.StorageError{Op: "read", Entity: "credential", ID: s.path, Err: err}
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, &storage.StorageError{Op: "read", Entity: "credential", ID: s.path, Err: storage.ErrStorageCorrupt}
	}
	return &cred, nil
}

// Save writes the credential record to disk. The write is atomic: a reader
// never observes a partially-written record, and a crash mid-save leaves the
// previous record intact.
func (s *FileStore) Save(ctx context.Context, cred *Credential) error {
	lock := storage.NewFileLock(s.path)
	if err := lock.Lock(storeLockTimeout); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return &storage.StorageError{Op: "write", Entity: "credential", ID: s.path, Err: err}
	}
	if err := storage.WriteFileAtomic(s.path, data, 0600); err != nil {
		return &storage.StorageError{Op: "write", Entity: "credential", ID: s.path, Err: err}
	}
	return nil
}
