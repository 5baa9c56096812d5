package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %s", cfg.LLM.Model)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Chunking.ParentTokens != 2000 {
		t.Errorf("expected 2000 parent tokens, got %d", cfg.Chunking.ParentTokens)
	}
	if cfg.Retrieval.RRFK != 60 {
		t.Errorf("expected rrf_k 60, got %d", cfg.Retrieval.RRFK)
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Ingest.Workers)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[source]
root = "/srv/docs"

[chunking]
child_tokens = 128

[retrieval]
top_k = 10
`), 0644)

	cfg := Load(path)
	if cfg.Source.Root != "/srv/docs" {
		t.Errorf("expected /srv/docs, got %s", cfg.Source.Root)
	}
	if cfg.Chunking.ChildTokens != 128 {
		t.Errorf("expected 128 child tokens, got %d", cfg.Chunking.ChildTokens)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("expected top_k 10, got %d", cfg.Retrieval.TopK)
	}
	// Defaults preserved
	if cfg.Database.Path != "lode.db" {
		t.Errorf("default should be preserved, got %s", cfg.Database.Path)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LODE_LLM_API_KEY", "env-key")
	t.Setenv("LODE_DB_PATH", "/var/lode/kb.db")

	cfg := Load("/nonexistent/path.toml")
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Database.Path != "/var/lode/kb.db" {
		t.Errorf("expected /var/lode/kb.db, got %s", cfg.Database.Path)
	}
	// Fallback: embedding and vision inherit the LLM key
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("expected embedding fallback to env-key, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Vision.APIKey != "env-key" {
		t.Errorf("expected vision fallback to env-key, got %s", cfg.Vision.APIKey)
	}
}

func TestVisionFallsBackToLLM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
base_url = "http://localhost:11434/v1"
model = "llava"
api_key = "k"
`), 0644)

	cfg := Load(path)
	if cfg.Vision.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("expected vision base_url fallback, got %s", cfg.Vision.BaseURL)
	}
	if cfg.Vision.Model != "llava" {
		t.Errorf("expected vision model fallback, got %s", cfg.Vision.Model)
	}
	if cfg.Vision.APIKey != "k" {
		t.Errorf("expected vision api_key fallback, got %s", cfg.Vision.APIKey)
	}
}
