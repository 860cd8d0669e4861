package config

import "testing"

func TestParseOverlaysDefaults(t *testing.T) {
	yamlDoc := []byte(`
assistant_name: TestBot
orchestrator:
  max_tool_iter: 5
`)
	cfg, err := Parse(yamlDoc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.AssistantName != "TestBot" {
		t.Fatalf("expected overlay to apply, got %q", cfg.AssistantName)
	}
	if cfg.Orchestrator.MaxToolIterations != 5 {
		t.Fatalf("expected overlay max_tool_iter=5, got %d", cfg.Orchestrator.MaxToolIterations)
	}
	if cfg.Orchestrator.MaxContextBytes != 24*1024 {
		t.Fatalf("expected untouched field to keep its default, got %d", cfg.Orchestrator.MaxContextBytes)
	}
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Bus.QueueLen != 8 {
		t.Fatalf("expected bus queue len 8, got %d", cfg.Bus.QueueLen)
	}
	if cfg.ControlPlane.IdempCacheSize != 16 || cfg.ControlPlane.IdempWindowMs != 30_000 {
		t.Fatalf("unexpected idempotency defaults: %+v", cfg.ControlPlane)
	}
	if cfg.Orchestrator.TurnTimeoutMs != 45_000 {
		t.Fatalf("expected turn timeout 45000ms, got %d", cfg.Orchestrator.TurnTimeoutMs)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AssistantName = "RoundTripBot"
	path := t.TempDir() + "/config.yaml"

	if err := SaveToFile(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AssistantName != "RoundTripBot" {
		t.Fatalf("unexpected round-tripped name: %q", loaded.AssistantName)
	}
}
