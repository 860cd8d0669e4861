package secrets

import (
	"os"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/jholhewres/mimiclaw/internal/config"
)

func init() {
	keyring.MockInit()
}

func TestStoreGetDeleteRoundTrip(t *testing.T) {
	if err := Store("test_key", "secret-value"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := Get("test_key"); got != "secret-value" {
		t.Fatalf("expected secret-value, got %q", got)
	}
	if err := Delete("test_key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := Get("test_key"); got != "" {
		t.Fatalf("expected empty after delete, got %q", got)
	}
}

func TestResolveAPIKeyPrefersKeyring(t *testing.T) {
	if err := Store(keyringAPIKey, "from-keyring"); err != nil {
		t.Fatalf("store: %v", err)
	}
	defer Delete(keyringAPIKey)

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "from-config"
	ResolveAPIKey(cfg, nil)

	if cfg.LLM.APIKey != "from-keyring" {
		t.Fatalf("expected keyring value to win, got %q", cfg.LLM.APIKey)
	}
}

func TestResolveAPIKeyFallsBackToEnv(t *testing.T) {
	os.Setenv(envAPIKey, "from-env")
	defer os.Unsetenv(envAPIKey)

	cfg := config.DefaultConfig()
	ResolveAPIKey(cfg, nil)

	if cfg.LLM.APIKey != "from-env" {
		t.Fatalf("expected env value, got %q", cfg.LLM.APIKey)
	}
}

func TestResolveAPIKeyFallsBackToConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "from-config"
	ResolveAPIKey(cfg, nil)

	if cfg.LLM.APIKey != "from-config" {
		t.Fatalf("expected config value preserved, got %q", cfg.LLM.APIKey)
	}
}
