// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// ClientSecretPath points at the OAuth client secret JSON downloaded
	// from the Google Cloud console.
	ClientSecretPath string `json:"client_secret_path"`
	// CredentialPath is where the obtained OAuth credential is persisted.
	CredentialPath string `json:"credential_path"`
	// LedgerPath is the download ledger database file.
	LedgerPath string `json:"ledger_path"`
	// AudioDir is the directory fetched audio files are written to.
	AudioDir string `json:"audio_dir"`
	// AudioEndpoint is the extraction endpoint URL template. The literal
	// {video} is replaced with the video ID.
	AudioEndpoint string `json:"audio_endpoint"`

	// MaxConcurrentChannels bounds how many channels are worked in parallel.
	MaxConcurrentChannels int `json:"max_concurrent_channels"`
	// HTTPTimeout is the per-request timeout for audio fetches.
	HTTPTimeout time.Duration `json:"http_timeout"`
	// RequestsPerSecond throttles audio fetch requests per host (0 = unlimited).
	RequestsPerSecond float64 `json:"requests_per_second"`

	// MaxAttempts is the total attempt budget per fetch, first try included.
	MaxAttempts int `json:"max_attempts"`
	// InitialBackoff is the delay before the first re-attempt.
	InitialBackoff time.Duration `json:"initial_backoff"`
	// MaxBackoff caps the backoff growth.
	MaxBackoff time.Duration `json:"max_backoff"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1)
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".ytlatest")
	return &Config{
		ClientSecretPath:      filepath.Join(base, "client_secret.json"),
		CredentialPath:        filepath.Join(base, "credential.json"),
		LedgerPath:            filepath.Join(base, "ledger.db"),
		AudioDir:              filepath.Join(base, "audio"),
		MaxConcurrentChannels: 4,
		HTTPTimeout:           2 * time.Minute,
		RequestsPerSecond:     2.5,
		MaxAttempts:           5,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from ytlatest.json in current directory or home directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"ytlatest.json",
		filepath.Join(os.Getenv("HOME"), ".config", "ytlatest", "ytlatest.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("YTLATEST_CLIENT_SECRET"); v != "" {
		c.ClientSecretPath = v
	}
	if v := os.Getenv("YTLATEST_CREDENTIAL"); v != "" {
		c.CredentialPath = v
	}
	if v := os.Getenv("YTLATEST_LEDGER"); v != "" {
		c.LedgerPath = v
	}
	if v := os.Getenv("YTLATEST_AUDIO_DIR"); v != "" {
		c.AudioDir = v
	}
	if v := os.Getenv("YTLATEST_AUDIO_ENDPOINT"); v != "" {
		c.AudioEndpoint = v
	}
	if v := os.Getenv("YTLATEST_MAX_CONCURRENT_CHANNELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrentChannels = n
		}
	}
	if v := os.Getenv("YTLATEST_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTPTimeout = d
		}
	}
	if v := os.Getenv("YTLATEST_REQUESTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("YTLATEST_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv("YTLATEST_INITIAL_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.InitialBackoff = d
		}
	}
	if v := os.Getenv("YTLATEST_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxBackoff = d
		}
	}
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.ClientSecretPath == "" {
		return fmt.Errorf("client_secret_path must be set")
	}
	if c.CredentialPath == "" {
		return fmt.Errorf("credential_path must be set")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path must be set")
	}
	if c.MaxConcurrentChannels < 1 {
		return fmt.Errorf("max_concurrent_channels must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	return nil
}

// RetrySettings converts the backoff fields into a retry policy view.
func (c *Config) RetrySettings() (maxAttempts int, initial, max time.Duration, multiplier float64) {
	return c.MaxAttempts, c.InitialBackoff, c.MaxBackoff, c.BackoffMultiplier
}
