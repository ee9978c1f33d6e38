package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("got %+v want defaults", got)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte("world:\n  x_dim: 40\n  y_dim: 8\nagents:\n  count: 2\n  walk_jitter: 0.25\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.World.XDim != 40 || got.World.YDim != 8 {
		t.Fatalf("world=%+v want 40x8", got.World)
	}
	if got.Agents.Count != 2 || got.Agents.WalkJitter != 0.25 {
		t.Fatalf("agents=%+v", got.Agents)
	}
	// Untouched fields keep their defaults.
	if got.SimTickMs != 1000 || got.BroadcastMs != 100 || got.MinConversationDistance != 3 {
		t.Fatalf("defaults not preserved: %+v", got)
	}
	if got.LLM.Model != "gpt-3.5-turbo" {
		t.Fatalf("llm model=%q", got.LLM.Model)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("sim_tick_ms: -5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
