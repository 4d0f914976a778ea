package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"ytlatest/auth"
	"ytlatest/config"
	ythttp "ytlatest/http"
	"ytlatest/pipeline"
	"ytlatest/retry"
	"ytlatest/storage"
	"ytlatest/youtube"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		cmdRun(args)
	case "auth":
		cmdAuth(args)
	case "status":
		cmdStatus(args)
	case "watched":
		cmdWatched(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ytlatest - fetch the newest subscription videos as audio

Usage:
  ytlatest run [flags]           Fetch new videos from all subscribed channels
  ytlatest auth                  Obtain and store an OAuth credential
  ytlatest status [flags]        Show the download ledger
  ytlatest watched <video-id>    Mark a retrieved video as watched
  ytlatest help                  Show this help message

Examples:
  ytlatest auth                                # One-time interactive consent
  ytlatest run                                 # Fetch everything new
  ytlatest run --channels 8                    # Wider channel fan-out
  ytlatest status                              # Summary counts
  ytlatest status --list retrieved_not_watched # Pending videos, newest first
  ytlatest watched dQw4w9WgXcQ                 # Done with this one

For help on specific command: ytlatest <command> -h
`)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	channels := fs.Int("channels", 0, "Max concurrent channels (0 = use config)")
	audioDir := fs.String("dir", "", "Audio output directory (empty = use config)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytlatest run [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig()
	if *channels > 0 {
		cfg.MaxConcurrentChannels = *channels
	}
	if *audioDir != "" {
		cfg.AudioDir = *audioDir
	}
	if cfg.AudioEndpoint == "" {
		fmt.Fprintf(os.Stderr, "Error: audio_endpoint is not configured (set YTLATEST_AUDIO_ENDPOINT)\n")
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	ledger := openLedger(cfg)
	defer ledger.Close()

	manager := buildManager(cfg, logger)

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	connect := func(ctx context.Context, cred *auth.Credential) (youtube.API, error) {
		return youtube.Connect(ctx, cred, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(manager, connect, fetcher, ledger, pipeline.Config{
		Retry: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.InitialBackoff,
			MaxDelay:    cfg.MaxBackoff,
			Multiplier:  cfg.BackoffMultiplier,
		},
		MaxConcurrentChannels: cfg.MaxConcurrentChannels,
		AudioDir:              cfg.AudioDir,
	}, logger)

	report, err := p.Run(ctx)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			fmt.Fprintf(os.Stderr, "Error: authentication failed during %s: %v\n", authErr.Stage, authErr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Run %s finished in %s\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Printf("  channels with new videos: %d (processed %d, failed %d)\n",
		report.ChannelsWithNew, report.ChannelsProcessed, report.ChannelsFailed)
	fmt.Printf("  videos fetched: %d, failed: %d\n", report.VideosFetched, report.VideosFailed)
	if report.MalformedEntries > 0 {
		fmt.Printf("  malformed subscription entries skipped: %d\n", report.MalformedEntries)
	}
	if report.VideosFailed > 0 || report.ChannelsFailed > 0 {
		os.Exit(2)
	}
}

func cmdAuth(args []string) {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytlatest auth\n")
	}
	fs.Parse(args)

	cfg := loadConfig()
	logger := log.New(os.Stderr, "", log.LstdFlags)
	manager := buildManager(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cred, err := manager.Obtain(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error obtaining credential: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Credential stored at %s (expires %s)\n",
		cfg.CredentialPath, cred.Expiry.Local().Format(time.RFC1123))
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	list := fs.String("list", "", "List records in a state: not_retrieved, retrieved_not_watched, or watched")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytlatest status [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig()
	ledger := openLedger(cfg)
	defer ledger.Close()

	ctx := context.Background()

	if *list == "" {
		summary, err := ledger.Summarize(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading ledger: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATE\tCOUNT")
		fmt.Fprintf(w, "%s\t%d\n", storage.StatusNotRetrieved, summary.NotRetrieved)
		fmt.Fprintf(w, "%s\t%d\n", storage.StatusRetrievedNotWatched, summary.RetrievedNotWatched)
		fmt.Fprintf(w, "%s\t%d\n", storage.StatusWatched, summary.Watched)
		fmt.Fprintf(w, "total\t%d\n", summary.Total())
		w.Flush()
		return
	}

	switch *list {
	case storage.StatusNotRetrieved, storage.StatusRetrievedNotWatched, storage.StatusWatched:
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid --list value %q\n", *list)
		os.Exit(1)
	}

	records, err := ledger.ListByStatus(ctx, *list)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading ledger: %v\n", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		fmt.Println("No records.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO ID\tTITLE\tPUBLISHED\tATTEMPTS")
	for _, rec := range records {
		published := ""
		if !rec.PublishedAt.IsZero() {
			published = rec.PublishedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			rec.VideoID,
			truncate(rec.Title, 50),
			published,
			rec.AttemptCount,
		)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d records\n", len(records))
}

func cmdWatched(args []string) {
	fs := flag.NewFlagSet("watched", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytlatest watched <video-id>\n")
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing video-id\n")
		fs.Usage()
		os.Exit(1)
	}
	videoID := argv[0]

	cfg := loadConfig()
	ledger := openLedger(cfg)
	defer ledger.Close()

	if err := ledger.MarkWatched(context.Background(), videoID); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Fprintf(os.Stderr, "Error: no ledger record for %s\n", videoID)
		case errors.Is(err, storage.ErrInvalidInput):
			fmt.Fprintf(os.Stderr, "Error: %s has not been retrieved yet\n", videoID)
		default:
			fmt.Fprintf(os.Stderr, "Error updating ledger: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Marked %s as watched\n", videoID)
}

// loadConfig loads configuration or exits with an error.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openLedger opens the download ledger or exits with an error.
func openLedger(cfg *config.Config) *storage.Ledger {
	ledger, err := storage.OpenLedger(cfg.LedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		os.Exit(1)
	}
	return ledger
}

// buildManager wires the credential store and the Google OAuth provider.
func buildManager(cfg *config.Config, logger *log.Logger) *auth.Manager {
	scopes := youtube.ReadOnlyScopes()
	provider, err := auth.NewGoogleProvider(cfg.ClientSecretPath, scopes, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading client secret: %v\n", err)
		os.Exit(1)
	}
	return auth.NewManager(auth.NewFileStore(cfg.CredentialPath), provider, scopes, logger)
}

// buildFetcher wires the rate-limited audio client against the configured
// extraction endpoint.
func buildFetcher(cfg *config.Config) (youtube.AudioFetcher, error) {
	httpCfg := ythttp.DefaultConfig()
	httpCfg.Timeout = cfg.HTTPTimeout
	httpCfg.RateLimiter.RequestsPerSecond = cfg.RequestsPerSecond
	return youtube.NewHTTPAudioFetcher(ythttp.New(httpCfg), cfg.AudioEndpoint)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
