package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ytlatest/auth"
	"ytlatest/retry"
	"ytlatest/storage"
	"ytlatest/youtube"
)

type fakeAPI struct {
	mu sync.Mutex

	subs     []youtube.RawSubscription
	subsErr  error
	subCalls int

	videos     map[string][]youtube.VideoRef
	videosErr  map[string]error
	videoCalls map[string]int
}

func (a *fakeAPI) ListSubscriptions(ctx context.Context) ([]youtube.RawSubscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subCalls++
	if a.subsErr != nil {
		return nil, a.subsErr
	}
	return a.subs, nil
}

func (a *fakeAPI) ListNewVideos(ctx context.Context, channelID string, limit int64) ([]youtube.VideoRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.videoCalls == nil {
		a.videoCalls = make(map[string]int)
	}
	a.videoCalls[channelID]++
	if err := a.videosErr[channelID]; err != nil {
		return nil, err
	}
	refs := a.videos[channelID]
	if int64(len(refs)) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	payload []byte
	errs    map[string]error
	calls   map[string]int
}

func (f *fakeFetcher) FetchAudio(ctx context.Context, videoID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[videoID]++
	if err := f.errs[videoID]; err != nil {
		return nil, err
	}
	if f.payload != nil {
		return f.payload, nil
	}
	return []byte("audio:" + videoID), nil
}

type staticStore struct {
	cred *auth.Credential
}

func (s *staticStore) Load(ctx context.Context) (*auth.Credential, error) {
	if s.cred == nil {
		return nil, &storage.StorageError{Op: "read", Entity: "credential", Err: storage.ErrNotFound}
	}
	return s.cred, nil
}

func (s *staticStore) Save(ctx context.Context, cred *auth.Credential) error {
	s.cred = cred
	return nil
}

type staticProvider struct {
	cred *auth.Credential
	err  error
}

func (p *staticProvider) AuthorizeInteractive(ctx context.Context, scopes []string) (*auth.Credential, error) {
	return p.cred, p.err
}

func (p *staticProvider) Refresh(ctx context.Context, cred *auth.Credential) (*auth.Credential, error) {
	return p.cred, p.err
}

func validCredential() *auth.Credential {
	return &auth.Credential{
		AccessToken: "token",
		Expiry:      time.Now().Add(time.Hour),
		Valid:       true,
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func newTestPipeline(t *testing.T, api *fakeAPI, fetcher *fakeFetcher) (*Pipeline, *storage.Ledger) {
	t.Helper()

	ledger, err := storage.OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	manager := auth.NewManager(&staticStore{cred: validCredential()}, &staticProvider{}, nil, discardLogger())
	connect := func(ctx context.Context, cred *auth.Credential) (youtube.API, error) {
		return api, nil
	}

	cfg := DefaultConfig()
	cfg.Retry = testPolicy()
	return New(manager, connect, fetcher, ledger, cfg, discardLogger()), ledger
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRun_FetchesOnlyChannelsWithNewVideos(t *testing.T) {
	api := &fakeAPI{
		subs: []youtube.RawSubscription{
			{ChannelID: "chanA", ChannelTitle: "A", NewItemCount: 3},
			{ChannelID: "chanB", ChannelTitle: "B", NewItemCount: 0},
		},
		videos: map[string][]youtube.VideoRef{
			"chanA": {
				{VideoID: "a1", ChannelID: "chanA", Title: "one", PublishedAt: time.Now()},
				{VideoID: "a2", ChannelID: "chanA", Title: "two", PublishedAt: time.Now()},
				{VideoID: "a3", ChannelID: "chanA", Title: "three", PublishedAt: time.Now()},
			},
		},
	}
	fetcher := &fakeFetcher{}
	p, ledger := newTestPipeline(t, api, fetcher)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.ChannelsWithNew != 1 {
		t.Errorf("ChannelsWithNew = %d, want 1", report.ChannelsWithNew)
	}
	if report.VideosFetched != 3 {
		t.Errorf("VideosFetched = %d, want 3", report.VideosFetched)
	}
	if api.videoCalls["chanB"] != 0 {
		t.Errorf("channel with no new videos was listed %d times", api.videoCalls["chanB"])
	}

	for _, id := range []string{"a1", "a2", "a3"} {
		rec, err := ledger.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if rec.Status != storage.StatusRetrievedNotWatched {
			t.Errorf("video %s status = %s, want %s", id, rec.Status, storage.StatusRetrievedNotWatched)
		}
		if rec.AttemptCount != 1 {
			t.Errorf("video %s attempt count = %d, want 1", id, rec.AttemptCount)
		}
	}
}

func TestRun_ExhaustedFetchLeavesNotRetrievedWithAttempts(t *testing.T) {
	api := &fakeAPI{
		subs: []youtube.RawSubscription{{ChannelID: "chanA", ChannelTitle: "A", NewItemCount: 2}},
		videos: map[string][]youtube.VideoRef{
			"chanA": {
				{VideoID: "bad", ChannelID: "chanA", Title: "broken", PublishedAt: time.Now()},
				{VideoID: "good", ChannelID: "chanA", Title: "fine", PublishedAt: time.Now()},
			},
		},
	}
	fetcher := &fakeFetcher{errs: map[string]error{"bad": errors.New("upstream flake")}}
	p, ledger := newTestPipeline(t, api, fetcher)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.VideosFetched != 1 || report.VideosFailed != 1 {
		t.Errorf("fetched/failed = %d/%d, want 1/1", report.VideosFetched, report.VideosFailed)
	}
	if fetcher.calls["bad"] != 5 {
		t.Errorf("failing video fetched %d times, want 5", fetcher.calls["bad"])
	}

	rec, err := ledger.Get(context.Background(), "bad")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != storage.StatusNotRetrieved {
		t.Errorf("status = %s, want %s", rec.Status, storage.StatusNotRetrieved)
	}
	if rec.AttemptCount != 5 {
		t.Errorf("attempt count = %d, want 5", rec.AttemptCount)
	}

	good, err := ledger.Get(context.Background(), "good")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if good.Status != storage.StatusRetrievedNotWatched {
		t.Errorf("unaffected video status = %s, want %s", good.Status, storage.StatusRetrievedNotWatched)
	}
}

func TestRun_ChannelFailureIsIsolated(t *testing.T) {
	api := &fakeAPI{
		subs: []youtube.RawSubscription{
			{ChannelID: "chanA", ChannelTitle: "A", NewItemCount: 1},
			{ChannelID: "chanB", ChannelTitle: "B", NewItemCount: 1},
		},
		videos: map[string][]youtube.VideoRef{
			"chanB": {{VideoID: "b1", ChannelID: "chanB", Title: "ok", PublishedAt: time.Now()}},
		},
		videosErr: map[string]error{"chanA": context.DeadlineExceeded},
	}
	fetcher := &fakeFetcher{}
	p, _ := newTestPipeline(t, api, fetcher)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.ChannelsFailed != 1 {
		t.Errorf("ChannelsFailed = %d, want 1", report.ChannelsFailed)
	}
	if report.ChannelsProcessed != 1 {
		t.Errorf("ChannelsProcessed = %d, want 1", report.ChannelsProcessed)
	}
	if report.VideosFetched != 1 {
		t.Errorf("VideosFetched = %d, want 1", report.VideosFetched)
	}
}

func TestRun_SubscriptionListingFailureYieldsEmptyRun(t *testing.T) {
	api := &fakeAPI{subsErr: context.DeadlineExceeded}
	fetcher := &fakeFetcher{}
	p, _ := newTestPipeline(t, api, fetcher)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ChannelsWithNew != 0 || report.VideosFetched != 0 {
		t.Errorf("expected empty run, got %+v", report)
	}
}

func TestRun_MalformedSubscriptionsAreSkippedAndCounted(t *testing.T) {
	api := &fakeAPI{
		subs: []youtube.RawSubscription{
			{ChannelID: "", ChannelTitle: "no id", NewItemCount: 2},
			{ChannelID: "chanA", ChannelTitle: "A", NewItemCount: 1},
		},
		videos: map[string][]youtube.VideoRef{
			"chanA": {{VideoID: "a1", ChannelID: "chanA", Title: "one", PublishedAt: time.Now()}},
		},
	}
	fetcher := &fakeFetcher{}
	p, _ := newTestPipeline(t, api, fetcher)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.MalformedEntries != 1 {
		t.Errorf("MalformedEntries = %d, want 1", report.MalformedEntries)
	}
	if report.VideosFetched != 1 {
		t.Errorf("VideosFetched = %d, want 1", report.VideosFetched)
	}
}

func TestRun_AuthFailureAbortsRun(t *testing.T) {
	ledger, err := storage.OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer ledger.Close()

	manager := auth.NewManager(
		&staticStore{},
		&staticProvider{err: errors.New("consent denied")},
		nil, discardLogger())
	connect := func(ctx context.Context, cred *auth.Credential) (youtube.API, error) {
		t.Fatal("connect called despite auth failure")
		return nil, nil
	}

	p := New(manager, connect, &fakeFetcher{}, ledger, DefaultConfig(), discardLogger())
	_, err = p.Run(context.Background())

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Run error = %v, want *auth.AuthError", err)
	}
}

func TestRun_WritesAudioPayloadToDisk(t *testing.T) {
	api := &fakeAPI{
		subs: []youtube.RawSubscription{{ChannelID: "chanA", ChannelTitle: "A", NewItemCount: 1}},
		videos: map[string][]youtube.VideoRef{
			"chanA": {{VideoID: "a1", ChannelID: "chanA", Title: "one", PublishedAt: time.Now()}},
		},
	}
	fetcher := &fakeFetcher{payload: []byte("mp3 bytes")}
	p, _ := newTestPipeline(t, api, fetcher)
	p.cfg.AudioDir = t.TempDir()

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(p.cfg.AudioDir, "a1.mp3"))
	if err != nil {
		t.Fatalf("read audio file: %v", err)
	}
	if string(data) != "mp3 bytes" {
		t.Errorf("audio payload = %q, want %q", data, "mp3 bytes")
	}
}

// cancelingFetcher cancels the run after its first successful fetch.
type cancelingFetcher struct {
	fakeFetcher
	cancel context.CancelFunc
}

func (f *cancelingFetcher) FetchAudio(ctx context.Context, videoID string) ([]byte, error) {
	payload, err := f.fakeFetcher.FetchAudio(ctx, videoID)
	f.cancel()
	return payload, err
}

func TestRun_CancellationStopsNewFetchesButCompletesLedgerWrites(t *testing.T) {
	api := &fakeAPI{
		subs: []youtube.RawSubscription{{ChannelID: "chanA", ChannelTitle: "A", NewItemCount: 2}},
		videos: map[string][]youtube.VideoRef{
			"chanA": {
				{VideoID: "v1", ChannelID: "chanA", Title: "first", PublishedAt: time.Now()},
				{VideoID: "v2", ChannelID: "chanA", Title: "second", PublishedAt: time.Now()},
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &cancelingFetcher{cancel: cancel}
	p, ledger := newTestPipeline(t, api, &fetcher.fakeFetcher)
	p.audio = fetcher

	report, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.VideosFetched != 1 {
		t.Errorf("VideosFetched = %d, want 1", report.VideosFetched)
	}

	rec, err := ledger.Get(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Get(v1): %v", err)
	}
	if rec.Status != storage.StatusRetrievedNotWatched {
		t.Errorf("v1 status = %s, want %s", rec.Status, storage.StatusRetrievedNotWatched)
	}
	if rec.AttemptCount != 1 {
		t.Errorf("v1 attempt count = %d, want 1", rec.AttemptCount)
	}

	if _, err := ledger.Get(context.Background(), "v2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(v2) = %v, want ErrNotFound", err)
	}
}

func TestRun_ReportHasRunIDAndTimestamps(t *testing.T) {
	api := &fakeAPI{}
	p, _ := newTestPipeline(t, api, &fakeFetcher{})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("FinishedAt %v before StartedAt %v", report.FinishedAt, report.StartedAt)
	}
}
