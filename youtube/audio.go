package youtube

import (
	"context"
	"fmt"
	"strings"

	"ytlatest/http"
)

// videoPlaceholder marks where the video ID goes in an audio endpoint
// template, e.g. "https://resolver.example.com/audio/{video}.mp3".
const videoPlaceholder = "{video}"

// HTTPAudioFetcher retrieves audio payloads from a remote resolver endpoint
// over the rate-limited HTTP client.
type HTTPAudioFetcher struct {
	client   *http.Client
	template string
}

// NewHTTPAudioFetcher creates a fetcher for the given endpoint template.
// The template must contain the {video} placeholder.
func NewHTTPAudioFetcher(client *http.Client, template string) (*HTTPAudioFetcher, error) {
	if !strings.Contains(template, videoPlaceholder) {
		return nil, fmt.Errorf("audio endpoint template %q missing %s placeholder", template, videoPlaceholder)
	}
	return &HTTPAudioFetcher{client: client, template: template}, nil
}

// FetchAudio performs a single fetch attempt for the video's audio payload.
func (f *HTTPAudioFetcher) FetchAudio(ctx context.Context, videoID string) ([]byte, error) {
	if videoID == "" {
		return nil, &APIError{Op: "audio", Err: fmt.Errorf("empty video id")}
	}

	url := strings.ReplaceAll(f.template, videoPlaceholder, videoID)
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, &APIError{Op: "audio", Err: err}
	}
	if len(resp.Body) == 0 {
		return nil, &APIError{Op: "audio", Err: fmt.Errorf("empty payload for %s", videoID)}
	}
	return resp.Body, nil
}
