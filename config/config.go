package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

// ProviderSettings configures one embedding or generation tier
type ProviderSettings struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	Dimensions        int     `yaml:"dimensions,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// Config holds application configuration
type Config struct {
	Debug bool `yaml:"debug"`
	Log   struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Store struct {
		Catalog string `yaml:"catalog"`
		Index   string `yaml:"index"`
	} `yaml:"store"`
	Qdrant struct {
		Host             string `yaml:"host"`
		Port             int    `yaml:"port"`
		CollectionPrefix string `yaml:"collection_prefix"`
	} `yaml:"qdrant"`
	Ollama struct {
		BaseURL      string `yaml:"base_url"`
		DefaultModel string `yaml:"default_model"`
	} `yaml:"ollama"`
	Embeddings struct {
		Tiers         []ProviderSettings `yaml:"tiers"`
		BatchSize     int                `yaml:"batch_size"`
		MaxInputChars int                `yaml:"max_input_chars"`
	} `yaml:"embeddings"`
	Generation struct {
		Tiers         []ProviderSettings `yaml:"tiers"`
		MaxTokens     int                `yaml:"max_tokens"`
		Temperature   float64            `yaml:"temperature"`
		TopP          float64            `yaml:"top_p"`
		TopK          int                `yaml:"top_k"`
		ContextTokens int                `yaml:"context_tokens"`
	} `yaml:"generation"`
	Retry struct {
		MaxRetries int           `yaml:"max_retries"`
		Delay      time.Duration `yaml:"delay"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"retry"`
	Processing struct {
		ChunkSize       int           `yaml:"chunk_size"`
		ChunkOverlap    int           `yaml:"chunk_overlap"`
		MinChunkSize    int           `yaml:"min_chunk_size"`
		TopK            int           `yaml:"top_k"`
		MaxResultsLimit int           `yaml:"max_results_limit"`
		SimilarityFloor float64       `yaml:"similarity_floor"`
		StageTimeout    time.Duration `yaml:"stage_timeout"`
		Workers         int           `yaml:"workers"`
	} `yaml:"processing"`
	Confidence struct {
		TopWeight       float64 `yaml:"top_weight"`
		CountWeight     float64 `yaml:"count_weight"`
		CountSaturation int     `yaml:"count_saturation"`
	} `yaml:"confidence"`
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Tracing struct {
		Endpoint    string  `yaml:"endpoint"`
		ServiceName string  `yaml:"service_name"`
		SampleRate  float64 `yaml:"sample_rate"`
		Environment string  `yaml:"environment"`
	} `yaml:"tracing"`
	Paths struct {
		DocumentsDir string `yaml:"documents_dir"`
	} `yaml:"paths"`
}

// DefaultPath returns ~/.perspectives-ai/config.yaml
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".perspectives-ai", "config.yaml")
}

// LoadDotEnv loads variables from .env files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from path, or the default path when empty, then
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment
func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.ConnectionString = v
	}
	if v := os.Getenv("RAG_STORE"); v != "" {
		c.Store.Catalog = v
	}
	if v := os.Getenv("RAG_INDEX"); v != "" {
		c.Store.Index = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Qdrant.Host = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if v := os.Getenv("RAG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("RAG_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RAG_DEBUG %q: %w", v, err)
		}
		c.Debug = debug
	}

	keys := map[string]string{
		"gemini": firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY"),
		"openai": os.Getenv("OPENAI_API_KEY"),
	}
	fill := func(tiers []ProviderSettings) {
		for i := range tiers {
			if tiers[i].APIKey == "" {
				tiers[i].APIKey = keys[tiers[i].Provider]
			}
			if tiers[i].Provider == "ollama" && tiers[i].BaseURL == "" {
				tiers[i].BaseURL = c.Ollama.BaseURL
			}
		}
	}
	fill(c.Embeddings.Tiers)
	fill(c.Generation.Tiers)
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Save saves configuration to path, or the default path when empty.
// API keys are not written.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *c
	out.Embeddings.Tiers = withoutKeys(c.Embeddings.Tiers)
	out.Generation.Tiers = withoutKeys(c.Generation.Tiers)

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func withoutKeys(tiers []ProviderSettings) []ProviderSettings {
	out := make([]ProviderSettings, len(tiers))
	for i, t := range tiers {
		t.APIKey = ""
		out[i] = t
	}
	return out
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.Store.Catalog = BackendMemory
	cfg.Store.Index = BackendMemory
	cfg.Qdrant.Host = "localhost"
	cfg.Qdrant.Port = 6334
	cfg.Qdrant.CollectionPrefix = "chunks"
	cfg.Ollama.BaseURL = "http://localhost:11434"

	cfg.Embeddings.Tiers = []ProviderSettings{
		{Provider: "gemini", Model: "text-embedding-004"},
		{Provider: "openai", Model: "text-embedding-3-small"},
		{Provider: "local", Dimensions: 384},
	}
	cfg.Embeddings.BatchSize = 10
	cfg.Embeddings.MaxInputChars = 8000

	cfg.Generation.Tiers = []ProviderSettings{
		{Provider: "gemini", Model: "gemini-2.0-flash-exp"},
		{Provider: "openai", Model: "gpt-4o-mini"},
	}
	cfg.Generation.MaxTokens = 1000
	cfg.Generation.Temperature = 0.3
	cfg.Generation.TopP = 0.8
	cfg.Generation.TopK = 40
	cfg.Generation.ContextTokens = 2000

	cfg.Retry.MaxRetries = 2
	cfg.Retry.Delay = 500 * time.Millisecond
	cfg.Retry.Timeout = 15 * time.Second

	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 200
	cfg.Processing.MinChunkSize = 100
	cfg.Processing.TopK = 5
	cfg.Processing.MaxResultsLimit = 20
	cfg.Processing.SimilarityFloor = 0.3
	cfg.Processing.StageTimeout = 60 * time.Second
	cfg.Processing.Workers = 4

	cfg.Confidence.TopWeight = 0.7
	cfg.Confidence.CountWeight = 0.3
	cfg.Confidence.CountSaturation = 3

	cfg.Server.Addr = ":8000"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 120 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Tracing.ServiceName = "perspectives-ai"
	cfg.Tracing.SampleRate = 1.0
	cfg.Tracing.Environment = "development"

	cfg.Paths.DocumentsDir = filepath.Join(os.Getenv("HOME"), "documents")

	return cfg
}

var knownProviders = map[string]bool{"gemini": true, "openai": true, "ollama": true, "local": true}

// Validate returns human-readable warnings about settings that will not work
// as intended. An empty result means the configuration looks usable.
func (c *Config) Validate() []string {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	switch c.Store.Catalog {
	case BackendMemory, BackendPostgres:
	default:
		warn("store.catalog %q is not one of memory, postgres", c.Store.Catalog)
	}
	switch c.Store.Index {
	case BackendMemory, BackendQdrant:
	case BackendPostgres:
		if c.Store.Catalog != BackendPostgres {
			warn("store.index postgres requires store.catalog postgres")
		}
	default:
		warn("store.index %q is not one of memory, postgres, qdrant", c.Store.Index)
	}
	if c.Store.Index == BackendMemory && c.Store.Catalog != BackendMemory {
		warn("store.index memory loses vectors on restart while the catalog persists them as processed")
	}
	if (c.Store.Catalog == BackendPostgres || c.Store.Index == BackendPostgres) && c.Database.ConnectionString == "" {
		warn("database.connection_string is empty")
	}

	if len(c.Embeddings.Tiers) == 0 {
		warn("no embedding tiers configured")
	}
	check := func(kind string, tiers []ProviderSettings) {
		for i, t := range tiers {
			if !knownProviders[t.Provider] {
				warn("%s tier %d: unknown provider %q", kind, i+1, t.Provider)
				continue
			}
			if (t.Provider == "gemini" || t.Provider == "openai") && t.APIKey == "" {
				warn("%s tier %d (%s): no API key, tier will be skipped", kind, i+1, t.Provider)
			}
		}
	}
	check("embedding", c.Embeddings.Tiers)
	check("generation", c.Generation.Tiers)
	for i, t := range c.Generation.Tiers {
		if t.Provider == "local" {
			warn("generation tier %d: local provider only embeds", i+1)
		}
	}

	p := c.Processing
	if p.ChunkSize <= 0 {
		warn("processing.chunk_size must be positive")
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		warn("processing.chunk_overlap must be in [0, chunk_size)")
	}
	if p.TopK <= 0 {
		warn("processing.top_k must be positive")
	}
	if p.MaxResultsLimit > 0 && p.TopK > p.MaxResultsLimit {
		warn("processing.top_k %d exceeds max_results_limit %d", p.TopK, p.MaxResultsLimit)
	}
	if p.SimilarityFloor < -1 || p.SimilarityFloor > 1 {
		warn("processing.similarity_floor must be in [-1, 1]")
	}
	if c.Confidence.TopWeight+c.Confidence.CountWeight <= 0 {
		warn("confidence weights must sum to a positive value")
	}
	if c.Retry.MaxRetries < 0 {
		warn("retry.max_retries must not be negative")
	}
	if budget := time.Duration(c.Retry.MaxRetries+1) * c.Retry.Timeout; p.StageTimeout > 0 && budget >= p.StageTimeout {
		warn("retry budget %s ((max_retries+1) x retry.timeout) reaches processing.stage_timeout %s; a slow tier uses up its call before retries finish",
			budget, p.StageTimeout)
	}
	return warnings
}
