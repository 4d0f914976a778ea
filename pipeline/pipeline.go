// Package pipeline orchestrates a run: credential obtainment, subscription
// discovery, per-channel fan-out, and per-video audio fetches recorded in
// the download ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ytlatest/auth"
	"ytlatest/http"
	"ytlatest/retry"
	"ytlatest/storage"
	"ytlatest/youtube"
)

// ConnectFunc builds an API client from an obtained credential.
type ConnectFunc func(ctx context.Context, cred *auth.Credential) (youtube.API, error)

// Config holds pipeline tuning.
type Config struct {
	// Retry is the per-operation retry policy. Every fetch gets its own
	// independent attempt budget.
	Retry retry.Policy
	// MaxConcurrentChannels bounds the channel worker pool.
	MaxConcurrentChannels int
	// AudioDir is where fetched audio payloads are stored. Empty disables
	// the disk write (payloads are still fetched and recorded).
	AudioDir string
}

// DefaultConfig returns pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Retry:                 retry.DefaultPolicy(),
		MaxConcurrentChannels: 4,
	}
}

// Report summarizes a completed run. A run always completes with partial
// results: per-item failures are recorded here, never escalated.
type Report struct {
	RunID             string
	StartedAt         time.Time
	FinishedAt        time.Time
	ChannelsWithNew   int
	ChannelsProcessed int
	ChannelsFailed    int
	VideosFetched     int
	VideosFailed      int
	MalformedEntries  int
}

// Pipeline is the composition root wiring the credential manager, the API,
// the audio fetcher, and the download ledger together.
type Pipeline struct {
	manager *auth.Manager
	connect ConnectFunc
	audio   youtube.AudioFetcher
	ledger  *storage.Ledger
	cfg     Config
	logger  *log.Logger
}

// New creates a pipeline. A nil logger falls back to the standard logger.
func New(manager *auth.Manager, connect ConnectFunc, audio youtube.AudioFetcher, ledger *storage.Ledger, cfg Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxConcurrentChannels < 1 {
		cfg.MaxConcurrentChannels = 1
	}
	return &Pipeline{
		manager: manager,
		connect: connect,
		audio:   audio,
		ledger:  ledger,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run executes one full pipeline pass. It fails fast when no credential can
// be obtained; past that point every failure is isolated to its channel or
// video, recorded, and reflected in the report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	p.logger.Printf("pipeline: run %s starting", report.RunID)

	cred, err := p.manager.Obtain(ctx)
	if err != nil {
		return nil, err
	}

	api, err := p.connect(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("connect api: %w", err)
	}

	subs := p.discoverChannels(ctx, api, report)
	report.ChannelsWithNew = len(subs)
	p.logger.Printf("pipeline: %d channels with new videos", len(subs))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrentChannels)

	for _, sub := range subs {
		g.Go(func() error {
			fetched, failed, err := p.processChannel(ctx, api, sub)
			mu.Lock()
			defer mu.Unlock()
			report.VideosFetched += fetched
			report.VideosFailed += failed
			if err != nil {
				report.ChannelsFailed++
				p.logger.Printf("pipeline: channel %s failed: %v", sub.ChannelID, err)
			} else {
				report.ChannelsProcessed++
			}
			return nil
		})
	}
	g.Wait()

	report.FinishedAt = time.Now()
	p.logger.Printf("pipeline: run %s done: %d/%d channels processed, %d videos fetched, %d failed",
		report.RunID, report.ChannelsProcessed, report.ChannelsWithNew,
		report.VideosFetched, report.VideosFailed)
	return report, nil
}

// discoverChannels lists and filters subscriptions. Exhausted retries are
// tolerated: the run proceeds with an empty result set rather than aborting.
func (p *Pipeline) discoverChannels(ctx context.Context, api youtube.API, report *Report) []youtube.Subscription {
	var raw []youtube.RawSubscription
	err := retry.Do(ctx, p.cfg.Retry, youtube.IsTransientAPIError, p.logAttempt("subscriptions"), func(ctx context.Context) error {
		var err error
		raw, err = api.ListSubscriptions(ctx)
		return err
	})
	if err != nil {
		p.logger.Printf("pipeline: subscription listing failed, proceeding with empty set: %v", err)
		return nil
	}

	subs, malformed := youtube.FilterSubscriptions(raw)
	report.MalformedEntries = len(malformed)
	for _, m := range malformed {
		p.logger.Printf("pipeline: skipping malformed subscription: %v", m)
	}
	return subs
}

// processChannel fetches the channel's new-video list and works through it
// in the returned (newest-first) order. An exhausted listing fetch skips
// the whole channel; video-level failures only count against that video.
func (p *Pipeline) processChannel(ctx context.Context, api youtube.API, sub youtube.Subscription) (fetched, failed int, err error) {
	var videos []youtube.VideoRef
	err = retry.Do(ctx, p.cfg.Retry, youtube.IsTransientAPIError, p.logAttempt("videos/"+sub.ChannelID), func(ctx context.Context) error {
		var err error
		videos, err = api.ListNewVideos(ctx, sub.ChannelID, sub.NewItemCount)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("list videos: %w", err)
	}

	p.logger.Printf("pipeline: channel %s (%s): %d new videos", sub.ChannelID, sub.ChannelTitle, len(videos))

	for _, video := range videos {
		if ctx.Err() != nil {
			// Stop issuing new fetches on shutdown; already-recorded
			// attempts stay in the ledger.
			return fetched, failed, nil
		}
		if p.fetchVideo(ctx, video) {
			fetched++
		} else {
			failed++
		}
	}
	return fetched, failed, nil
}

// fetchVideo runs the retry-wrapped audio fetch for one video, recording
// every individual attempt in the ledger as it resolves so progress
// survives interruption mid-retry.
func (p *Pipeline) fetchVideo(ctx context.Context, video youtube.VideoRef) bool {
	// Ledger writes must complete even when the run is being canceled;
	// a record is never left mid-transition.
	ledgerCtx := context.WithoutCancel(ctx)

	if err := p.ledger.Ensure(ledgerCtx, video.VideoID, video.ChannelID, video.Title, video.PublishedAt); err != nil {
		p.logger.Printf("pipeline: ledger seed for %s failed: %v", video.VideoID, err)
		return false
	}

	notify := func(a retry.Attempt) {
		if err := p.ledger.RecordAttempt(ledgerCtx, video.VideoID, a.Err == nil, a.At); err != nil {
			p.logger.Printf("pipeline: ledger attempt record for %s failed: %v", video.VideoID, err)
		}
		if a.Err != nil {
			p.logger.Printf("pipeline: audio fetch %s attempt %d failed: %v", video.VideoID, a.Number, a.Err)
		}
	}

	err := retry.Do(ctx, p.cfg.Retry, p.classifyFetch, notify, func(ctx context.Context) error {
		payload, err := p.audio.FetchAudio(ctx, video.VideoID)
		if err != nil {
			return err
		}
		return p.storePayload(video.VideoID, payload)
	})
	if err != nil {
		p.logger.Printf("pipeline: audio fetch %s gave up: %v", video.VideoID, err)
		return false
	}
	return true
}

// storePayload writes the fetched audio to the audio directory.
func (p *Pipeline) storePayload(videoID string, payload []byte) error {
	if p.cfg.AudioDir == "" {
		return nil
	}
	path := filepath.Join(p.cfg.AudioDir, videoID+".mp3")
	if err := storage.WriteFileAtomic(path, payload, 0644); err != nil {
		return &storage.StorageError{Op: "write", Entity: "audio", ID: videoID, Err: err}
	}
	return nil
}

// classifyFetch treats local persistence failures as terminal; retrying a
// full disk burns the attempt budget for nothing. Everything else follows
// HTTP transport classification.
func (p *Pipeline) classifyFetch(err error) bool {
	var storErr *storage.StorageError
	if errors.As(err, &storErr) {
		return false
	}
	return http.IsTransient(err)
}

// logAttempt returns a retry notification callback that logs failed
// attempts for fetches that have no ledger record of their own.
func (p *Pipeline) logAttempt(op string) retry.Notify {
	return func(a retry.Attempt) {
		if a.Err != nil {
			p.logger.Printf("pipeline: %s attempt %d failed: %v", op, a.Number, a.Err)
		}
	}
}
