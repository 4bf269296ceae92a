// Package config loads hybridrag settings from a YAML file, the environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigName is the config file looked up in the working directory.
	DefaultConfigName = "hybridrag.yaml"
	// EnvPrefix prefixes every environment override, e.g. HYBRIDRAG_OLLAMA_BASE_URL.
	EnvPrefix = "HYBRIDRAG"
)

// Config is the complete application configuration.
type Config struct {
	Debug      bool             `mapstructure:"debug" yaml:"debug"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Ollama     OllamaConfig     `mapstructure:"ollama" yaml:"ollama"`
	PDF        PDFConfig        `mapstructure:"pdf" yaml:"pdf"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" yaml:"embedding"`
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Chunking   ChunkingConfig   `mapstructure:"chunking" yaml:"chunking"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval" yaml:"retrieval"`
	Answer     AnswerConfig     `mapstructure:"answer" yaml:"answer"`
	Snippets   SnippetsConfig   `mapstructure:"snippets" yaml:"snippets"`
	Jobs       JobsConfig       `mapstructure:"jobs" yaml:"jobs"`
	Paths      PathsConfig      `mapstructure:"paths" yaml:"paths"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	CORSOrigin string `mapstructure:"cors_origin" yaml:"cors_origin"`
}

type OllamaConfig struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	EmbedModel     string `mapstructure:"embed_model" yaml:"embed_model"`
	GenModel       string `mapstructure:"gen_model" yaml:"gen_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// PDFConfig points at the external PDF text extraction service.
type PDFConfig struct {
	ServiceURL     string `mapstructure:"service_url" yaml:"service_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type EmbeddingConfig struct {
	Dim               int     `mapstructure:"dim" yaml:"dim"`
	BatchSize         int     `mapstructure:"batch_size" yaml:"batch_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	DocumentPrefix    string  `mapstructure:"document_prefix" yaml:"document_prefix"`
	QueryPrefix       string  `mapstructure:"query_prefix" yaml:"query_prefix"`
	CacheBackend      string  `mapstructure:"cache_backend" yaml:"cache_backend"` // jsonl or sqlite
}

type GenerationConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Attempts          int     `mapstructure:"attempts" yaml:"attempts"`
	TemperatureStep   float64 `mapstructure:"temperature_step" yaml:"temperature_step"`
}

type RetryConfig struct {
	MaxRetries         int     `mapstructure:"max_retries" yaml:"max_retries"`
	BaseBackoffSeconds float64 `mapstructure:"base_backoff_seconds" yaml:"base_backoff_seconds"`
	MaxBackoffSeconds  float64 `mapstructure:"max_backoff_seconds" yaml:"max_backoff_seconds"`
}

type ChunkingConfig struct {
	Size     int `mapstructure:"size" yaml:"size"`
	Overlap  int `mapstructure:"overlap" yaml:"overlap"`
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars"` // 0 keeps whole windows
}

type RetrievalConfig struct {
	TopK          int `mapstructure:"top_k" yaml:"top_k"`
	SnippetChars  int `mapstructure:"snippet_chars" yaml:"snippet_chars"`
	ContextBudget int `mapstructure:"context_budget" yaml:"context_budget"`
}

type AnswerConfig struct {
	Threshold         float64 `mapstructure:"threshold" yaml:"threshold"`
	SnippetBudget     int     `mapstructure:"snippet_budget" yaml:"snippet_budget"`
	SnippetsPerSource int     `mapstructure:"snippets_per_source" yaml:"snippets_per_source"`
	MaxSnippets       int     `mapstructure:"max_snippets" yaml:"max_snippets"`
	FallbackContexts  int     `mapstructure:"fallback_contexts" yaml:"fallback_contexts"`
	FallbackChars     int     `mapstructure:"fallback_chars" yaml:"fallback_chars"`
}

type SnippetsConfig struct {
	K             int  `mapstructure:"k" yaml:"k"`
	MaxCandidates int  `mapstructure:"max_candidates" yaml:"max_candidates"`
	PreviewChars  int  `mapstructure:"preview_chars" yaml:"preview_chars"`
	AutoBuild     bool `mapstructure:"auto_build" yaml:"auto_build"`
}

type JobsConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type PathsConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	DocsDir string `mapstructure:"docs_dir" yaml:"docs_dir"`
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.embed_model", "nomic-embed-text")
	v.SetDefault("ollama.gen_model", "llama3.2")
	v.SetDefault("ollama.timeout_seconds", 300)

	v.SetDefault("pdf.service_url", "http://localhost:5001")
	v.SetDefault("pdf.timeout_seconds", 120)

	v.SetDefault("embedding.dim", 768)
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.requests_per_second", 0.5)
	v.SetDefault("embedding.document_prefix", "search_document: ")
	v.SetDefault("embedding.query_prefix", "search_query: ")
	v.SetDefault("embedding.cache_backend", "jsonl")

	v.SetDefault("generation.requests_per_second", 0.2)
	v.SetDefault("generation.temperature", 0.2)
	v.SetDefault("generation.max_tokens", 800)
	v.SetDefault("generation.attempts", 3)
	v.SetDefault("generation.temperature_step", 0.2)

	v.SetDefault("retry.max_retries", 8)
	v.SetDefault("retry.base_backoff_seconds", 1.5)
	v.SetDefault("retry.max_backoff_seconds", 20.0)

	v.SetDefault("chunking.size", 900)
	v.SetDefault("chunking.overlap", 150)
	v.SetDefault("chunking.max_chars", 0)

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.snippet_chars", 900)
	v.SetDefault("retrieval.context_budget", 4000)

	v.SetDefault("answer.threshold", 0.35)
	v.SetDefault("answer.snippet_budget", 2000)
	v.SetDefault("answer.snippets_per_source", 0)
	v.SetDefault("answer.max_snippets", 0)
	v.SetDefault("answer.fallback_contexts", 3)
	v.SetDefault("answer.fallback_chars", 200)

	v.SetDefault("snippets.k", 8)
	v.SetDefault("snippets.max_candidates", 40)
	v.SetDefault("snippets.preview_chars", 400)
	v.SetDefault("snippets.auto_build", false)

	v.SetDefault("jobs.workers", 4)

	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.docs_dir", "")
	v.SetDefault("paths.log_file", "")
}

// Configure prepares v to read file (or hybridrag.yaml in the working directory)
// with HYBRIDRAG_ environment overrides.
func Configure(v *viper.Viper, file string) {
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigName, filepath.Ext(DefaultConfigName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the config file, if any, and returns the merged, validated configuration.
// A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.Answer.Threshold < -1 || c.Answer.Threshold > 1 {
		errs = append(errs, fmt.Errorf("answer.threshold must be in [-1, 1], got %g", c.Answer.Threshold))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}
	if c.Embedding.Dim < 0 {
		errs = append(errs, fmt.Errorf("embedding.dim must not be negative, got %d", c.Embedding.Dim))
	}
	switch c.Embedding.CacheBackend {
	case "jsonl", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("embedding.cache_backend must be jsonl or sqlite, got %q", c.Embedding.CacheBackend))
	}
	return errors.Join(errs...)
}

// Save writes cfg as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Timeout returns the Ollama request timeout.
func (c OllamaConfig) Timeout() time.Duration { return seconds(float64(c.TimeoutSeconds), 300*time.Second) }

// Timeout returns the PDF service request timeout.
func (c PDFConfig) Timeout() time.Duration { return seconds(float64(c.TimeoutSeconds), 120*time.Second) }

// MinInterval converts the request rate into the spacing between calls.
func (c EmbeddingConfig) MinInterval() time.Duration { return interval(c.RequestsPerSecond) }

// MinInterval converts the request rate into the spacing between calls.
func (c GenerationConfig) MinInterval() time.Duration { return interval(c.RequestsPerSecond) }

func (c RetryConfig) BaseBackoff() time.Duration {
	return seconds(c.BaseBackoffSeconds, 1500*time.Millisecond)
}

func (c RetryConfig) MaxBackoff() time.Duration { return seconds(c.MaxBackoffSeconds, 20*time.Second) }

// IndexDir holds vectors.bin, meta.log and files_registry.json.
func (p PathsConfig) IndexDir() string { return filepath.Join(p.dataDir(), "index") }

// SidecarDir holds the per-document snippet files.
func (p PathsConfig) SidecarDir() string { return filepath.Join(p.dataDir(), "snippets") }

// CacheDir holds the embedding cache.
func (p PathsConfig) CacheDir() string { return filepath.Join(p.dataDir(), "cache") }

// Docs returns the watched documents directory.
func (p PathsConfig) Docs() string {
	if strings.TrimSpace(p.DocsDir) != "" {
		return p.DocsDir
	}
	return filepath.Join(p.dataDir(), "uploads")
}

func (p PathsConfig) dataDir() string {
	if strings.TrimSpace(p.DataDir) == "" {
		return "data"
	}
	return p.DataDir
}

// interval returns zero (unthrottled) for a non-positive rate.
func interval(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}

func seconds(s float64, fallback time.Duration) time.Duration {
	if s <= 0 {
		return fallback
	}
	return time.Duration(s * float64(time.Second))
}
