package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the engine configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	AI      AIConfig      `yaml:"ai"`
	Index   IndexConfig   `yaml:"index"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// AIConfig holds the upstream model provider settings.
type AIConfig struct {
	APIKey     string          `yaml:"api_key"`
	BaseURL    string          `yaml:"base_url"`
	LLM        LLMConfig       `yaml:"llm"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	TimeoutSec int             `yaml:"timeout_sec"`
}

// LLMConfig holds chat completion settings.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// IndexConfig holds vector index and chunking settings.
type IndexConfig struct {
	DataDir       string `yaml:"data_dir"`
	MaxChunkSize  int    `yaml:"max_chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	ExcerptLength int    `yaml:"excerpt_length"`
}

// CacheConfig holds the optional Redis embedding cache settings.
// The cache is disabled when no addrs are configured.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLHours int      `yaml:"ttl_hours"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := filepath.Join("config", fmt.Sprintf("%s.yaml", env))

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Streaming completions hold the response open well past a normal
		// request; the write timeout has to cover the whole stream.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.AI.TimeoutSec <= 0 {
		c.AI.TimeoutSec = 30
	}
	if c.AI.LLM.MaxTokens <= 0 {
		c.AI.LLM.MaxTokens = 1000
	}
	if c.AI.LLM.Temperature <= 0 {
		c.AI.LLM.Temperature = 0.7
	}
	if c.AI.Embedding.Dimensions <= 0 {
		c.AI.Embedding.Dimensions = 2560
	}
	if c.AI.Embedding.BatchSize <= 0 {
		c.AI.Embedding.BatchSize = 16
	}
	if c.Index.DataDir == "" {
		c.Index.DataDir = "data"
	}
	if c.Index.MaxChunkSize <= 0 {
		c.Index.MaxChunkSize = 1000
	}
	if c.Index.ChunkOverlap <= 0 {
		c.Index.ChunkOverlap = 200
	}
	if c.Index.ExcerptLength <= 0 {
		c.Index.ExcerptLength = 200
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 7 * 24
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.AI.LLM.Model == "" {
		return fmt.Errorf("ai.llm.model is required")
	}
	if c.AI.Embedding.Model == "" {
		return fmt.Errorf("ai.embedding.model is required")
	}
	if c.Index.ChunkOverlap >= c.Index.MaxChunkSize {
		return fmt.Errorf(
			"index.chunk_overlap (%d) must be smaller than index.max_chunk_size (%d)",
			c.Index.ChunkOverlap, c.Index.MaxChunkSize,
		)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
