package ytlatest

import (
	"ytlatest/auth"
	"ytlatest/http"
	"ytlatest/retry"
	"ytlatest/storage"
	"ytlatest/youtube"
)

// Error handling types exported for library users.
//
// All error types support the standard error handling patterns:
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, ytlatest.ErrRefreshRevoked) {
//		fmt.Println("stored refresh token was revoked")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var fetchErr *retry.Error
//	if errors.As(err, &fetchErr) {
//		fmt.Printf("fetch gave up after %d attempts: %v\n", fetchErr.Attempts, fetchErr.Cause)
//	}

// Type aliases for convenient error handling.
type (
	// AuthError wraps failures obtaining or refreshing a credential.
	AuthError = auth.AuthError
	// FetchError wraps errors after a retry loop gives up.
	FetchError = retry.Error
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
	// APIError wraps YouTube Data API failures.
	APIError = youtube.APIError
	// RateLimitError indicates the extraction endpoint throttled a request.
	RateLimitError = http.RateLimitError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrRefreshRevoked indicates the stored refresh token is no longer accepted.
	ErrRefreshRevoked = auth.ErrRefreshRevoked
	// ErrCircuitOpen indicates fetches to a host are suspended after repeated failures.
	ErrCircuitOpen = http.ErrCircuitOpen

	// Storage errors
	// ErrNotFound indicates an entity was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrAlreadyExists indicates an entity already exists in storage.
	ErrAlreadyExists = storage.ErrAlreadyExists
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = storage.ErrInvalidInput
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsExhausted reports whether an error is a fetch that ran out of attempts.
func IsExhausted(err error) bool {
	return retry.IsExhausted(err)
}

// IsTerminal reports whether an error is a fetch stopped on a permanent failure.
func IsTerminal(err error) bool {
	return retry.IsTerminal(err)
}
