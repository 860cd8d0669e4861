// Package secrets resolves sensitive values (the LLM API key) through the
// OS-native keyring, falling back to environment variables and finally the
// plaintext config value, adapted from the teacher's keyring.go priority
// chain.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/jholhewres/mimiclaw/internal/config"
)

const (
	keyringService = "mimiclaw"
	keyringAPIKey  = "api_key"

	envAPIKey = "MIMICLAW_API_KEY"
)

// Store saves a secret to the OS keyring.
func Store(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// Get retrieves a secret from the OS keyring, returning "" if not found.
func Get(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// Delete removes a secret from the OS keyring.
func Delete(key string) error {
	return keyring.Delete(keyringService, key)
}

// Available reports whether the OS keyring is reachable, by a write+delete
// round trip against a throwaway key.
func Available() bool {
	const testKey = "__mimiclaw_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey resolves the LLM API key using the priority chain: OS
// keyring → environment variable → config.yaml value. Updates cfg in place.
func ResolveAPIKey(cfg *config.Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if val := Get(keyringAPIKey); val != "" {
		cfg.LLM.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}

	if val := os.Getenv(envAPIKey); val != "" {
		cfg.LLM.APIKey = val
		logger.Debug("API key loaded from environment")
		return
	}

	if cfg.LLM.APIKey != "" && !isEnvReference(cfg.LLM.APIKey) {
		logger.Debug("API key loaded from config")
		return
	}

	logger.Warn("no LLM API key found; set one with the config command or " + envAPIKey)
}

// MigrateToKeyring moves an API key from config/env into the OS keyring.
func MigrateToKeyring(apiKey string, logger *slog.Logger) error {
	if err := Store(keyringAPIKey, apiKey); err != nil {
		return fmt.Errorf("secrets: storing in keyring: %w", err)
	}
	if logger != nil {
		logger.Info("API key stored in OS keyring", "service", keyringService)
	}
	return nil
}

func isEnvReference(v string) bool {
	return strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}")
}
