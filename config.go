package nostrmux

import (
	"os"
	"time"

	"github.com/yanun0323/errors"
)

const (
	defaultRetry   = 10
	defaultTimeout = 10 * time.Second

	// RetryDisabled turns automatic reconnection off entirely; the first
	// connection loss is terminal for that transport lifetime.
	RetryDisabled = -1
)

// Config holds the configuration for a nostrmux client.
type Config struct {
	// Retry is the number of reconnection attempts a transport makes after
	// a failed dial or a lost connection; a successful open restores the
	// full budget. Zero means the default of 10; RetryDisabled means no
	// retries.
	Retry int

	// Timeout is the idle window after which a backward or oneshot
	// subscription completes without waiting for stragglers.
	// Zero means the default of 10 seconds.
	Timeout time.Duration

	// SecretKey is a hex or bech32 (nsec) secret key used to sign events
	// when Send is called without an explicit key.
	// Fallback: NOSTR_SECRET_KEY environment variable.
	SecretKey string

	// Signer overrides the signing path entirely, e.g. to delegate to an
	// external signer. Ignored when SecretKey is set.
	Signer Signer
}

// resolveConfig fills empty fields from environment variables, applies
// defaults, and validates.
func resolveConfig(cfg Config) (Config, error) {
	if cfg.Retry == 0 {
		cfg.Retry = defaultRetry
	}
	if cfg.Retry == RetryDisabled {
		cfg.Retry = 0
	}
	if cfg.Retry < 0 {
		return cfg, errors.Errorf("Retry must be >= 0 or RetryDisabled, got %d", cfg.Retry)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Timeout < 0 {
		return cfg, errors.Errorf("Timeout must be positive, got %s", cfg.Timeout)
	}

	if cfg.SecretKey == "" {
		cfg.SecretKey = os.Getenv("NOSTR_SECRET_KEY")
	}

	return cfg, nil
}
