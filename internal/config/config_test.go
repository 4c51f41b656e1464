package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reranker.IncorrectThreshold = 0.8
	cfg.Reranker.CorrectThreshold = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for incorrect_threshold >= correct_threshold")
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reranker.FilterThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for filter_threshold > 1")
	}
}

func TestValidateRejectsPositiveNegativeDelta(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Comprehension.DeltaConfused = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for positive 'confused' delta")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("expected default top_k=5, got %d", cfg.Retrieval.TopK)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("retrieval:\n  top_k: 8\nreranker:\n  correct_threshold: 0.75\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("expected top_k=8, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Reranker.CorrectThreshold != 0.75 {
		t.Errorf("expected correct_threshold=0.75, got %v", cfg.Reranker.CorrectThreshold)
	}
	// Untouched fields keep defaults
	if cfg.Reranker.FilterThreshold != 0.5 {
		t.Errorf("expected default filter_threshold=0.5, got %v", cfg.Reranker.FilterThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENSEI_GENAI_API_KEY", "test-key")
	t.Setenv("SENSEI_DB_PATH", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Embedding.GenAIAPIKey != "test-key" {
		t.Errorf("expected env override for GenAI API key")
	}
	if cfg.Store.DatabasePath != "/tmp/override.db" {
		t.Errorf("expected env override for db path, got %s", cfg.Store.DatabasePath)
	}
}
