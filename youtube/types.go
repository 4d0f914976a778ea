// Package youtube talks to the YouTube Data API v3: subscription discovery,
// per-channel new-video listing, and audio payload retrieval.
package youtube

import (
	"context"
	"fmt"
	"time"
)

// RawSubscription is one entry of the raw subscription listing as returned
// by the API, before filtering. Fields may be missing on malformed entries.
type RawSubscription struct {
	ChannelID    string
	ChannelTitle string
	NewItemCount int64
}

// Subscription is a channel with new uploads, derived from the raw listing
// every run and never persisted.
type Subscription struct {
	ChannelID    string
	ChannelTitle string
	NewItemCount int64
}

// VideoRef identifies one upload. Immutable once fetched.
type VideoRef struct {
	VideoID     string
	ChannelID   string
	Title       string
	PublishedAt time.Time
}

// API lists subscriptions and per-channel new videos. Each method performs
// a single remote call attempt; callers own retry policy.
type API interface {
	// ListSubscriptions returns the authenticated user's full subscription
	// listing.
	ListSubscriptions(ctx context.Context) ([]RawSubscription, error)
	// ListNewVideos returns up to limit of the channel's videos, newest
	// first.
	ListNewVideos(ctx context.Context, channelID string, limit int64) ([]VideoRef, error)
}

// AudioFetcher retrieves the audio payload for a video. Each call performs
// a single remote attempt; callers own retry policy.
type AudioFetcher interface {
	FetchAudio(ctx context.Context, videoID string) ([]byte, error)
}

// APIError wraps errors from remote calls with operation context.
type APIError struct {
	// Op is the remote operation ("subscriptions", "search", "audio").
	Op string
	// Channel is the channel ID if applicable.
	Channel string
	// Err is the underlying error.
	Err error
}

// Error returns a string representation of the API error.
func (e *APIError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("youtube: %s %s: %v", e.Op, e.Channel, e.Err)
	}
	return fmt.Sprintf("youtube: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *APIError) Unwrap() error { return e.Err }
