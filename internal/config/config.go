// Package config implements YAML configuration load/save/discovery for the
// runtime, adapted from the teacher's loader.go pattern (defaults-then-
// overlay unmarshal) and covering spec §6's full Configuration Options
// table.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BusConfig controls the two-queue message bus.
type BusConfig struct {
	QueueLen            int `yaml:"bus_queue_len"`
	OutboundRetryMax    int `yaml:"outbound_queue_retry_max"`
	OutboundRetryBaseMs int `yaml:"outbound_queue_retry_base_ms"`
	OutboundSendRetryMax    int `yaml:"outbound_send_retry_max"`
	OutboundSendRetryBaseMs int `yaml:"outbound_send_retry_base_ms"`
}

// ControlPlaneConfig controls the control plane's fixed-capacity resources.
type ControlPlaneConfig struct {
	IdempCacheSize int   `yaml:"idemp_cache_size"`
	IdempWindowMs  int64 `yaml:"idemp_window_ms"`
	MaxAlarms      int   `yaml:"max_alarms"`
	MaxTempRules   int   `yaml:"max_temp_rules"`
	AuditSize      int   `yaml:"audit_size"`
}

// OrchestratorConfig controls the per-turn ReAct loop.
type OrchestratorConfig struct {
	ContextBufSize      int   `yaml:"context_buf_size"`
	MaxContextBytes     int   `yaml:"max_context_bytes"`
	MaxToolIterations   int   `yaml:"max_tool_iter"`
	TurnTimeoutMs       int64 `yaml:"turn_timeout_ms"`
	ToolResultMaxBytes  int   `yaml:"tool_result_max_bytes"`
	ToolResultsTotalMax int   `yaml:"tool_results_total_max"`
	SessionMaxMsgs      int   `yaml:"session_max_msgs"`
	RouteHintReloadMs   int64 `yaml:"route_hint_reload_ms"`
	SkillRuleReloadMs   int64 `yaml:"skill_rule_reload_ms"`
	RouteHintsPath      string `yaml:"route_hints_path"`
	SkillRulesPath      string `yaml:"skill_rules_path"`
}

// LLMConfig controls the LLM collaborator client.
type LLMConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Model          string   `yaml:"model"`
	FallbackModels []string `yaml:"fallback_models"`
	APIKey         string   `yaml:"api_key"`
}

// Config is the root runtime configuration, covering spec §6's full
// Configuration Options table.
type Config struct {
	AssistantName string             `yaml:"assistant_name"`
	Bus           BusConfig          `yaml:"bus"`
	ControlPlane  ControlPlaneConfig `yaml:"control_plane"`
	Orchestrator  OrchestratorConfig `yaml:"orchestrator"`
	LLM           LLMConfig          `yaml:"llm"`
	SessionDBPath string             `yaml:"session_db_path"`
	MemoryDBPath  string             `yaml:"memory_db_path"`
	CronSchedule  string             `yaml:"cron_schedule"`
	CronTask      string             `yaml:"cron_task"`
	WebSocketAddr string             `yaml:"websocket_addr"`
}

// DefaultConfig matches spec.md §6's stated numeric defaults, mirroring
// original_source/main/mimi_config.h.
func DefaultConfig() *Config {
	return &Config{
		AssistantName: "Mimi",
		Bus: BusConfig{
			QueueLen:                8,
			OutboundRetryMax:        3,
			OutboundRetryBaseMs:     200,
			OutboundSendRetryMax:    3,
			OutboundSendRetryBaseMs: 500,
		},
		ControlPlane: ControlPlaneConfig{
			IdempCacheSize: 16,
			IdempWindowMs:  30_000,
			MaxAlarms:      8,
			MaxTempRules:   8,
			AuditSize:      32,
		},
		Orchestrator: OrchestratorConfig{
			ContextBufSize:      24 * 1024,
			MaxContextBytes:     24 * 1024,
			MaxToolIterations:   10,
			TurnTimeoutMs:       45_000,
			ToolResultMaxBytes:  2048,
			ToolResultsTotalMax: 4096,
			SessionMaxMsgs:      20,
			RouteHintReloadMs:   60_000,
			SkillRuleReloadMs:   60_000,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		SessionDBPath: "sessions.db",
		MemoryDBPath:  "memory.db",
	}
}

// LoadFromFile reads and parses a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML bytes into a Config, starting from defaults and
// overlaying whatever the document specifies.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing YAML: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes cfg as YAML to path.
func SaveToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing file: %w", err)
	}
	return nil
}

// FindFile searches standard locations for a config file, returning the
// first match or "".
func FindFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"mimictl.yaml",
		"mimictl.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
