// Package config holds typed configuration for sensei.
// All tunable thresholds and deltas live here as named fields validated at load
// time, never as loose string-keyed maps.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sensei configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Generation (answer synthesis) configuration
	Generation GenerationConfig `yaml:"generation"`

	// Cross-encoder reranker service
	Reranker RerankerConfig `yaml:"reranker"`

	// Hybrid retrieval settings
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Comprehension score controller settings
	Comprehension ComprehensionConfig `yaml:"comprehension"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "ollama" or "genai"

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// TaskType for GenAI: "SEMANTIC_SIMILARITY", "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT"
	TaskType string `yaml:"task_type"`
}

// GenerationConfig configures the external answer-generation service.
type GenerationConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// RerankerConfig configures the cross-encoder relevance service and the
// corrective decision thresholds.
type RerankerConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`

	// Decision thresholds over cross-encoder scores in [0,1].
	// max >= correct  => ACCEPT
	// max < incorrect => REJECT
	// otherwise       => FILTER at filter_threshold
	CorrectThreshold   float64 `yaml:"correct_threshold"`
	IncorrectThreshold float64 `yaml:"incorrect_threshold"`
	FilterThreshold    float64 `yaml:"filter_threshold"`

	// Minimum knowledge-base confidence required to substitute KB content
	// for rejected chunks.
	KBFallbackFloor float64 `yaml:"kb_fallback_floor"`
}

// RetrievalConfig configures the hybrid retriever.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`

	// Keyword-overlap confidence below which the LLM topic classifier runs.
	TopicKeywordThreshold float64 `yaml:"topic_keyword_threshold"`

	// Per-sub-retrieval timeout (vector search, QA match, KB lookup).
	SubStepTimeout string `yaml:"sub_step_timeout"`

	// Minimum similarity for a QA pair to be considered a match.
	QAMatchThreshold float64 `yaml:"qa_match_threshold"`
}

// ComprehensionConfig configures the bounded score controller.
type ComprehensionConfig struct {
	// Signed base deltas per reaction category.
	DeltaGotIt    float64 `yaml:"delta_got_it"`
	DeltaMostly   float64 `yaml:"delta_mostly"`
	DeltaConfused float64 `yaml:"delta_confused"`
	DeltaLost     float64 `yaml:"delta_lost"`

	// Streak damping: consecutive same-leaning reactions before halving.
	NegativeStreakLength int     `yaml:"negative_streak_length"`
	PositiveStreakLength int     `yaml:"positive_streak_length"`
	StreakDampingFactor  float64 `yaml:"streak_damping_factor"`

	// Boundary damping near the scale extremes.
	BoundaryHigh          float64 `yaml:"boundary_high"`
	BoundaryLow           float64 `yaml:"boundary_low"`
	BoundaryDampingFactor float64 `yaml:"boundary_damping_factor"`

	// History retention and trend window.
	HistoryLimit int `yaml:"history_limit"`
	TrendWindow  int `yaml:"trend_window"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// Request-level timeout for /api/ask (generation is seconds-scale).
	RequestTimeout string `yaml:"request_timeout"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sensei",
		Version: "0.3.0",

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "RETRIEVAL_QUERY",
		},

		Generation: GenerationConfig{
			Model:   "gemini-2.5-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
			Timeout: "120s",
		},

		Reranker: RerankerConfig{
			Enabled:            true,
			BaseURL:            "http://localhost:8011",
			Model:              "bge-reranker-v2-m3",
			Timeout:            "15s",
			CorrectThreshold:   0.7,
			IncorrectThreshold: 0.3,
			FilterThreshold:    0.5,
			KBFallbackFloor:    0.6,
		},

		Retrieval: RetrievalConfig{
			TopK:                  5,
			TopicKeywordThreshold: 0.35,
			SubStepTimeout:        "10s",
			QAMatchThreshold:      0.75,
		},

		Comprehension: ComprehensionConfig{
			DeltaGotIt:            5,
			DeltaMostly:           2,
			DeltaConfused:         -4,
			DeltaLost:             -7,
			NegativeStreakLength:  3,
			PositiveStreakLength:  5,
			StreakDampingFactor:   0.5,
			BoundaryHigh:          80,
			BoundaryLow:           20,
			BoundaryDampingFactor: 0.7,
			HistoryLimit:          50,
			TrendWindow:           6,
		},

		Store: StoreConfig{
			DatabasePath: "data/sensei.db",
		},

		Server: ServerConfig{
			Addr:           ":8090",
			RequestTimeout: "180s",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, merging over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides lets environment variables override file values for
// secrets that should not live on disk.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SENSEI_GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("SENSEI_GENERATION_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("SENSEI_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("SENSEI_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate checks threshold ordering and bounds. Called by Load; call it
// directly when building a Config in code.
func (c *Config) Validate() error {
	r := c.Reranker
	for name, v := range map[string]float64{
		"reranker.correct_threshold":   r.CorrectThreshold,
		"reranker.incorrect_threshold": r.IncorrectThreshold,
		"reranker.filter_threshold":    r.FilterThreshold,
		"reranker.kb_fallback_floor":   r.KBFallbackFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s must be in [0,1], got %v", name, v)
		}
	}
	if r.IncorrectThreshold >= r.CorrectThreshold {
		return fmt.Errorf("config: reranker.incorrect_threshold (%v) must be below correct_threshold (%v)",
			r.IncorrectThreshold, r.CorrectThreshold)
	}

	cc := c.Comprehension
	if cc.DeltaGotIt <= 0 || cc.DeltaMostly <= 0 {
		return fmt.Errorf("config: positive reaction deltas must be > 0")
	}
	if cc.DeltaConfused >= 0 || cc.DeltaLost >= 0 {
		return fmt.Errorf("config: negative reaction deltas must be < 0")
	}
	if cc.NegativeStreakLength < 2 || cc.PositiveStreakLength < 2 {
		return fmt.Errorf("config: streak lengths must be >= 2")
	}
	if cc.StreakDampingFactor <= 0 || cc.StreakDampingFactor >= 1 {
		return fmt.Errorf("config: streak_damping_factor must be in (0,1), got %v", cc.StreakDampingFactor)
	}
	if cc.BoundaryDampingFactor <= 0 || cc.BoundaryDampingFactor > 1 {
		return fmt.Errorf("config: boundary_damping_factor must be in (0,1], got %v", cc.BoundaryDampingFactor)
	}
	if cc.BoundaryLow >= cc.BoundaryHigh {
		return fmt.Errorf("config: boundary_low (%v) must be below boundary_high (%v)", cc.BoundaryLow, cc.BoundaryHigh)
	}
	if cc.HistoryLimit <= 0 {
		return fmt.Errorf("config: history_limit must be > 0")
	}
	if cc.TrendWindow <= 0 {
		return fmt.Errorf("config: trend_window must be > 0")
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("config: retrieval.top_k must be > 0")
	}
	if t := c.Retrieval.TopicKeywordThreshold; t < 0 || t > 1 {
		return fmt.Errorf("config: retrieval.topic_keyword_threshold must be in [0,1], got %v", t)
	}

	return nil
}

// SubStepTimeoutDuration parses the retrieval sub-step timeout with a safe default.
func (c *RetrievalConfig) SubStepTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.SubStepTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// TimeoutDuration parses the reranker timeout with a safe default.
func (c *RerankerConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// TimeoutDuration parses the generation timeout with a safe default.
func (c *GenerationConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .sensei directory. Falls back to the working directory itself.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	probe := dir
	for {
		if fi, err := os.Stat(filepath.Join(probe, ".sensei")); err == nil && fi.IsDir() {
			return probe, nil
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return dir, nil
		}
		probe = parent
	}
}
