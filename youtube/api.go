package youtube

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ytlatest/auth"
)

const (
	// subscriptionPageSize is the API maximum for subscriptions.list.
	subscriptionPageSize = 50
	// searchMaxResults is the API maximum for search.list.
	searchMaxResults = 50
)

// ReadOnlyScopes returns the OAuth scopes needed for subscription and
// video listing.
func ReadOnlyScopes() []string {
	return []string{youtube.YoutubeReadonlyScope}
}

// Client implements API using the YouTube Data API v3.
type Client struct {
	service *youtube.Service
	logger  *log.Logger
}

// Connect builds an API client authenticated with the given credential.
func Connect(ctx context.Context, cred *auth.Credential, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}

	service, err := youtube.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(cred.Token())))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &Client{service: service, logger: logger}, nil
}

// ListSubscriptions fetches the authenticated user's subscription listing,
// following pagination to the end. Entries missing identifying fields are
// returned as-is; filtering decides what to do with them.
func (c *Client) ListSubscriptions(ctx context.Context) ([]RawSubscription, error) {
	var subs []RawSubscription

	pageToken := ""
	for {
		call := c.service.Subscriptions.List([]string{"snippet", "contentDetails"}).
			Mine(true).
			MaxResults(subscriptionPageSize).
			Order("alphabetical").
			PageToken(pageToken).
			Context(ctx)

		resp, err := call.Do()
		if err != nil {
			return nil, &APIError{Op: "subscriptions", Err: err}
		}

		for _, item := range resp.Items {
			var raw RawSubscription
			if item.Snippet != nil {
				raw.ChannelTitle = item.Snippet.Title
				if item.Snippet.ResourceId != nil {
					raw.ChannelID = item.Snippet.ResourceId.ChannelId
				}
			}
			if item.ContentDetails != nil {
				raw.NewItemCount = int64(item.ContentDetails.NewItemCount)
			}
			subs = append(subs, raw)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Printf("youtube: %d subscriptions fetched", len(subs))
	return subs, nil
}

// ListNewVideos fetches up to limit videos for the channel, newest first.
// Items without a video ID are skipped.
func (c *Client) ListNewVideos(ctx context.Context, channelID string, limit int64) ([]VideoRef, error) {
	if limit < 1 {
		return nil, nil
	}
	if limit > searchMaxResults {
		limit = searchMaxResults
	}

	call := c.service.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Type("video").
		Order("date").
		MaxResults(limit).
		Context(ctx)

	resp, err := call.Do()
	if err != nil {
		return nil, &APIError{Op: "search", Channel: channelID, Err: err}
	}

	videos := make([]VideoRef, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ref := VideoRef{
			VideoID:   item.Id.VideoId,
			ChannelID: channelID,
		}
		if item.Snippet != nil {
			ref.Title = item.Snippet.Title
			if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				ref.PublishedAt = t
			}
		}
		videos = append(videos, ref)
	}

	return videos, nil
}
