// Package config loads the service configuration. Sources are layered:
// built-in defaults, an optional YAML file, a .env file and finally
// LOCALRAG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/localrag-agent/internal/core"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/pkg/redisx"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "LOCALRAG"

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
)

type Config struct {
	Env      core.Environment `yaml:"env" envconfig:"ENV"`
	LogLevel string           `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Model     ModelConfig            `yaml:"model" envconfig:"MODEL"`
	Embedding EmbeddingConfig        `yaml:"embedding" envconfig:"EMBEDDING"`
	Index     IndexConfig            `yaml:"index" envconfig:"INDEX"`
	Agent     entities.SessionConfig `yaml:"agent" envconfig:"AGENT"`
	Extractor ExtractorConfig        `yaml:"extractor" envconfig:"EXTRACTOR"`
	Redis     redisx.Config          `yaml:"redis" envconfig:"REDIS"`
	HTTP      HTTPConfig             `yaml:"http" envconfig:"HTTP"`
	History   HistoryConfig          `yaml:"history" envconfig:"HISTORY"`
}

// ModelConfig selects the generation backend.
type ModelConfig struct {
	Provider  string        `yaml:"provider" envconfig:"PROVIDER"`
	BaseURL   string        `yaml:"base_url" envconfig:"BASE_URL"`
	Name      string        `yaml:"name" envconfig:"NAME"`
	APIKey    string        `yaml:"api_key" envconfig:"API_KEY"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	QueueSize int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" envconfig:"PROVIDER"`
	BaseURL    string `yaml:"base_url" envconfig:"BASE_URL"`
	Name       string `yaml:"name" envconfig:"NAME"`
	APIKey     string `yaml:"api_key" envconfig:"API_KEY"`
	Dimensions int    `yaml:"dimensions" envconfig:"DIMENSIONS"`
}

// IndexConfig controls chunking and the vector store.
type IndexConfig struct {
	Backend      string `yaml:"backend" envconfig:"BACKEND"`
	ChunkSize    int    `yaml:"chunk_size" envconfig:"CHUNK_SIZE"`
	ChunkOverlap int    `yaml:"chunk_overlap" envconfig:"CHUNK_OVERLAP"`
	Workers      int    `yaml:"workers" envconfig:"WORKERS"`
}

// ExtractorConfig points at the PDF service.
type ExtractorConfig struct {
	PDFServiceURL string `yaml:"pdf_service_url" envconfig:"PDF_SERVICE_URL"`
	// ScriptDir, when set, is where pdf_service.py is started from.
	ScriptDir string `yaml:"script_dir" envconfig:"SCRIPT_DIR"`
	MaxChars  int    `yaml:"max_chars" envconfig:"MAX_CHARS"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type HistoryConfig struct {
	MaxTurns int `yaml:"max_turns" envconfig:"MAX_TURNS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:      core.Development,
		LogLevel: "info",
		Model: ModelConfig{
			Provider:  ProviderOllama,
			BaseURL:   "http://localhost:11434",
			Name:      "llama3.2:1b",
			Timeout:   2 * time.Minute,
			QueueSize: 64,
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Name:     "nomic-embed-text",
		},
		Index: IndexConfig{
			Backend:      BackendSQLite,
			ChunkSize:    512,
			ChunkOverlap: 50,
			Workers:      4,
		},
		Agent: entities.DefaultSessionConfig(),
		Extractor: ExtractorConfig{
			PDFServiceURL: "http://localhost:8081",
			MaxChars:      4000,
		},
		Redis: redisx.Config{
			TTL:          24 * time.Hour,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			DialTimeout:  5 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8765",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		History: HistoryConfig{MaxTurns: 10},
	}
}

// LoadOptions names the optional files. An empty EnvFile means ".env" in the
// working directory, which may be absent.
type LoadOptions struct {
	ConfigFile string
	EnvFile    string
}

// Load builds the configuration from every source and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	cfg.Env = core.ParseEnvironment(string(cfg.Env))
	cfg.Agent = cfg.Agent.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values no default can repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Model.Provider != ProviderOllama && c.Model.Provider != ProviderOpenAI {
		errs = append(errs, fmt.Errorf("model.provider must be %q or %q, got %q", ProviderOllama, ProviderOpenAI, c.Model.Provider))
	}
	if c.Embedding.Provider != ProviderOllama && c.Embedding.Provider != ProviderOpenAI {
		errs = append(errs, fmt.Errorf("embedding.provider must be %q or %q, got %q", ProviderOllama, ProviderOpenAI, c.Embedding.Provider))
	}
	if c.Model.Provider == ProviderOpenAI && c.Model.Name == "" {
		errs = append(errs, errors.New("model.name is required for the openai provider"))
	}
	if c.Index.Backend != BackendSQLite && c.Index.Backend != BackendMemory {
		errs = append(errs, fmt.Errorf("index.backend must be %q or %q, got %q", BackendSQLite, BackendMemory, c.Index.Backend))
	}
	if c.Index.ChunkSize <= 0 {
		errs = append(errs, errors.New("index.chunk_size must be positive"))
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		errs = append(errs, errors.New("index.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Model.Timeout <= 0 {
		errs = append(errs, errors.New("model.timeout must be positive"))
	}
	if c.History.MaxTurns <= 0 {
		errs = append(errs, errors.New("history.max_turns must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
