package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Source    SourceConfig    `toml:"source"`
	Database  DatabaseConfig  `toml:"database"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Vision    VisionConfig    `toml:"vision"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Ingest    IngestConfig    `toml:"ingest"`
	Observer  ObserverConfig  `toml:"observer"`
}

type SourceConfig struct {
	Root     string `toml:"root"`
	ImageDir string `toml:"image_dir"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	RPM     int    `toml:"rpm"` // 0 = unlimited
	TPM     int    `toml:"tpm"` // 0 = unlimited
}

type EmbeddingConfig struct {
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
	RPM        int    `toml:"rpm"`
	TPM        int    `toml:"tpm"`
}

// VisionConfig selects the captioning model. Empty fields fall back to
// the [llm] section so a single multimodal model can serve both.
type VisionConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	Enabled bool   `toml:"enabled"`
}

type ChunkingConfig struct {
	ParentTokens  int `toml:"parent_tokens"`
	ChildTokens   int `toml:"child_tokens"`
	OverlapTokens int `toml:"overlap_tokens"`
}

type RetrievalConfig struct {
	TopK          int     `toml:"top_k"`
	RRFK          int     `toml:"rrf_k"`
	MinScore      float64 `toml:"min_score"`
	ExpandQueries int     `toml:"expand_queries"`
	ContextBudget int     `toml:"context_budget"`
}

type IngestConfig struct {
	Workers   int `toml:"workers"`
	BatchSize int `toml:"batch_size"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Source:   SourceConfig{Root: "."},
		Database: DatabaseConfig{Path: "lode.db"},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Vision: VisionConfig{Enabled: true},
		Chunking: ChunkingConfig{
			ParentTokens:  2000,
			ChildTokens:   256,
			OverlapTokens: 32,
		},
		Retrieval: RetrievalConfig{
			TopK:          6,
			RRFK:          60,
			ExpandQueries: 0,
		},
		Ingest: IngestConfig{Workers: 4, BatchSize: 64},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "lode.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("LODE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LODE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("LODE_VISION_API_KEY"); v != "" {
		cfg.Vision.APIKey = v
	}
	if v := os.Getenv("LODE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LODE_SOURCE_ROOT"); v != "" {
		cfg.Source.Root = v
	}
	if os.Getenv("LODE_OBSERVER_ENABLED") == "true" || os.Getenv("LODE_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks: the embedding endpoint usually lives next to the chat one,
	// and a multimodal chat model can caption images.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Vision.BaseURL == "" {
		cfg.Vision.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = cfg.LLM.Model
	}
	if cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = cfg.LLM.APIKey
	}

	return cfg
}
