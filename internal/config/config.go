// Package config loads service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names
const (
	BackendOpenAI  = "openai"
	BackendLocal   = "local"
	BackendOffline = "offline"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Generation GenerationConfig `yaml:"generation"`
	Project    ProjectConfig    `yaml:"project"`
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	Auth       AuthConfig       `yaml:"auth"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// ModelConfig selects and configures the generation backend
type ModelConfig struct {
	DefaultBackend string        `yaml:"default_backend"`
	OpenAI         OpenAIConfig  `yaml:"openai"`
	Local          LocalConfig   `yaml:"local"`
	Offline        OfflineConfig `yaml:"offline"`
}

type OpenAIConfig struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type LocalConfig struct {
	Model       string  `yaml:"model"`
	Endpoint    string  `yaml:"endpoint"`
	Temperature float64 `yaml:"temperature"`
}

type OfflineConfig struct {
	UseTemplates bool `yaml:"use_templates"`
}

// PromptConfig bounds the rendered context. MaxContextSize is in tokens.
type PromptConfig struct {
	MaxContextSize int `yaml:"max_context_size"`
	MaxParameters  int `yaml:"max_parameters"`
}

// MaxContextChars converts the token budget using four characters per token
func (p PromptConfig) MaxContextChars() int {
	return p.MaxContextSize * 4
}

// ExecutionConfig controls the transactional executor and retry loop.
// AutoTransaction and SandboxMode are accepted for compatibility with the
// add-in's settings file; nothing branches on them.
type ExecutionConfig struct {
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
	AutoTransaction   bool `yaml:"auto_transaction"`
	CaptureOutput     bool `yaml:"capture_output"`
	MaxRetriesOnError int  `yaml:"max_retries_on_error"`
	SandboxMode       bool `yaml:"sandbox_mode"`
}

// Timeout is the per-run execution timeout
func (e ExecutionConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// MaxAttempts is the total number of runs an execute request may make
func (e ExecutionConfig) MaxAttempts() int {
	return 1 + e.MaxRetriesOnError
}

// GenerationConfig bounds calls to the generation backend.
// A zero timeout inherits the execution timeout.
type GenerationConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type ProjectConfig struct {
	Root          string `yaml:"root"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb"`
	MaxReadLines  int    `yaml:"max_read_lines"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Model: ModelConfig{
			DefaultBackend: BackendOpenAI,
			OpenAI: OpenAIConfig{
				Model:       "gpt-4",
				BaseURL:     "https://api.openai.com/v1",
				Temperature: 0.7,
				MaxTokens:   2048,
			},
			Local: LocalConfig{
				Model:       "neural-chat",
				Endpoint:    "http://localhost:11434",
				Temperature: 0.7,
			},
			Offline: OfflineConfig{UseTemplates: true},
		},
		Prompt: PromptConfig{MaxContextSize: 8000, MaxParameters: 5},
		Execution: ExecutionConfig{
			TimeoutSeconds:    60,
			AutoTransaction:   true,
			CaptureOutput:     true,
			MaxRetriesOnError: 2,
			SandboxMode:       true,
		},
		Project: ProjectConfig{Root: ".", MaxFileSizeMB: 100, MaxReadLines: 100},
		Logging: LoggingConfig{Level: "INFO", File: "cad_copilot.log", MaxSizeMB: 10, MaxBackups: 3},
		Store:   StoreConfig{Driver: DriverSQLite, DSN: "cad_copilot.db"},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
	}
}

// GenerationTimeout is the generation call bound, inheriting the execution timeout when unset
func (c Config) GenerationTimeout() time.Duration {
	if c.Generation.TimeoutSeconds > 0 {
		return time.Duration(c.Generation.TimeoutSeconds) * time.Second
	}
	return c.Execution.Timeout()
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables. lookup is os.LookupEnv outside tests.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str("PORT", &cfg.Server.Port)
	str("COPILOT_BACKEND", &cfg.Model.DefaultBackend)
	str("OPENAI_API_KEY", &cfg.Model.OpenAI.APIKey)
	str("LLM_BASE_URL", &cfg.Model.OpenAI.BaseURL)
	str("OLLAMA_HOST", &cfg.Model.Local.Endpoint)
	str("PROJECT_ROOT", &cfg.Project.Root)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("COPILOT_LOG_FILE", &cfg.Logging.File)
	str("COPILOT_STORE_DRIVER", &cfg.Store.Driver)
	str("COPILOT_STORE_DSN", &cfg.Store.DSN)
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Store.Driver = DriverPostgres
		cfg.Store.DSN = v
	}

	if err := num("EXECUTION_TIMEOUT_SECONDS", &cfg.Execution.TimeoutSeconds); err != nil {
		return err
	}
	if err := num("GENERATION_TIMEOUT_SECONDS", &cfg.Generation.TimeoutSeconds); err != nil {
		return err
	}
	return num("MAX_RETRIES_ON_ERROR", &cfg.Execution.MaxRetriesOnError)
}

// Validate rejects configurations the service cannot start with
func (c Config) Validate() error {
	switch c.Model.DefaultBackend {
	case BackendOpenAI, BackendLocal, BackendOffline:
	default:
		return fmt.Errorf("unknown model backend %q", c.Model.DefaultBackend)
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Execution.TimeoutSeconds <= 0 {
		return fmt.Errorf("execution.timeout_seconds must be positive")
	}
	if c.Execution.MaxRetriesOnError < 0 {
		return fmt.Errorf("execution.max_retries_on_error must not be negative")
	}
	return nil
}
