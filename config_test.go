package nostrmux

import (
	"testing"
	"time"
)

func TestResolveConfig_Defaults(t *testing.T) {
	cfg, err := resolveConfig(Config{})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if cfg.Retry != defaultRetry {
		t.Errorf("Retry = %d, want %d", cfg.Retry, defaultRetry)
	}
	if cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout = %s, want %s", cfg.Timeout, defaultTimeout)
	}
}

func TestResolveConfig_RetryDisabled(t *testing.T) {
	cfg, err := resolveConfig(Config{Retry: RetryDisabled})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if cfg.Retry != 0 {
		t.Errorf("Retry = %d, want 0", cfg.Retry)
	}
}

func TestResolveConfig_Invalid(t *testing.T) {
	if _, err := resolveConfig(Config{Retry: -2}); err == nil {
		t.Error("negative Retry should error")
	}
	if _, err := resolveConfig(Config{Timeout: -time.Second}); err == nil {
		t.Error("negative Timeout should error")
	}
}

func TestResolveConfig_SecretKeyFromEnv(t *testing.T) {
	t.Setenv("NOSTR_SECRET_KEY", "abc123")

	cfg, err := resolveConfig(Config{})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if cfg.SecretKey != "abc123" {
		t.Errorf("SecretKey = %q, want env fallback", cfg.SecretKey)
	}

	cfg, err = resolveConfig(Config{SecretKey: "explicit"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if cfg.SecretKey != "explicit" {
		t.Errorf("SecretKey = %q, explicit value should win over env", cfg.SecretKey)
	}
}
