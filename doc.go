// Package ytlatest fetches the newest videos from subscribed YouTube
// channels as audio files, keeping a persistent ledger of what has been
// retrieved and watched.
//
// Overview
//
// A run walks the authenticated account's subscriptions, keeps only the
// channels reporting new uploads, and fetches the audio for each new video
// through an extraction endpoint. Every fetch attempt is recorded in a
// durable ledger so interrupted runs resume where they left off.
//
// Quick Start
//
// Wire the components and run a pass:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	ledger, err := storage.OpenLedger(cfg.LedgerPath)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ledger.Close()
//
//	provider, err := auth.NewGoogleProvider(cfg.ClientSecretPath, youtube.ReadOnlyScopes(), nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := auth.NewManager(auth.NewFileStore(cfg.CredentialPath), provider, youtube.ReadOnlyScopes(), nil)
//
//	report, err := pipeline.New(manager, connect, fetcher, ledger, pipeline.DefaultConfig(), nil).Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("fetched %d videos\n", report.VideosFetched)
//
// Configuration
//
// ytlatest loads settings from multiple sources:
//
//   1. Environment variables (highest priority)
//   2. Config file (ytlatest.json or ~/.config/ytlatest/ytlatest.json)
//   3. Default values (lowest priority)
//
// Environment variables:
//
//   - YTLATEST_CLIENT_SECRET: OAuth client secret JSON path
//   - YTLATEST_CREDENTIAL: Persisted credential path
//   - YTLATEST_LEDGER: Download ledger database path
//   - YTLATEST_AUDIO_DIR: Audio output directory
//   - YTLATEST_AUDIO_ENDPOINT: Extraction endpoint URL template
//   - YTLATEST_MAX_CONCURRENT_CHANNELS: Channel worker pool size
//   - YTLATEST_MAX_ATTEMPTS: Total attempt budget per fetch
//   - YTLATEST_INITIAL_BACKOFF: Delay before the first re-attempt
//   - YTLATEST_MAX_BACKOFF: Backoff cap
//
// Error Handling
//
// All operations return errors that implement standard Go error handling:
//
// Checking for sentinel errors:
//
//	if errors.Is(err, ytlatest.ErrNotFound) {
//		fmt.Println("no ledger record for that video")
//	}
//
// Extracting wrapped error details:
//
//	var authErr *ytlatest.AuthError
//	if errors.As(err, &authErr) {
//		fmt.Printf("authentication failed during %s: %v\n", authErr.Stage, authErr.Err)
//	}
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - auth: OAuth credential lifecycle and persistence
//   - youtube: Subscription and new-video listing, audio fetching
//   - storage: Download ledger and atomic file persistence
//   - retry: Exponential backoff retry logic
//   - pipeline: Full-run orchestration
//
package ytlatest
