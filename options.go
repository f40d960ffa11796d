package projectspace

import (
	"time"

	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	chatuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/chat"
)

type clientConfig struct {
	apiKey  string
	baseURL string

	llmModel    string
	maxTokens   int
	temperature float32

	embeddingModel string
	dimensions     int
	batchSize      int
	timeout        time.Duration

	dataDir    string
	chunkSize  int
	overlap    int
	excerptLen int

	cacheAddrs    []string
	cachePassword string
	cacheTTL      time.Duration

	logger *zap.Logger

	embedder  domain.Embedder
	completer chatuc.Completer
}

// Option configures a Client.
type Option func(*clientConfig)

// WithAPIKey sets the model provider API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible API endpoint.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithLLM sets the chat completion model.
func WithLLM(model string) Option {
	return func(c *clientConfig) { c.llmModel = model }
}

// WithLLMParams overrides the completion token limit and sampling
// temperature. Zero values keep the provider defaults.
func WithLLMParams(maxTokens int, temperature float32) Option {
	return func(c *clientConfig) {
		c.maxTokens = maxTokens
		c.temperature = temperature
	}
}

// WithEmbeddingModel sets the embedding model and its vector dimension.
func WithEmbeddingModel(model string, dimensions int) Option {
	return func(c *clientConfig) {
		c.embeddingModel = model
		c.dimensions = dimensions
	}
}

// WithDataDir sets where index snapshots are persisted. Defaults to "data".
func WithDataDir(dir string) Option {
	return func(c *clientConfig) { c.dataDir = dir }
}

// WithChunking overrides the document chunking parameters.
func WithChunking(maxSize, overlap int) Option {
	return func(c *clientConfig) {
		c.chunkSize = maxSize
		c.overlap = overlap
	}
}

// WithTimeout bounds each upstream model call.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithRedisCache enables the Redis embedding cache.
func WithRedisCache(addrs []string, password string, ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheAddrs = addrs
		c.cachePassword = password
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithEmbedder swaps in a custom embedding provider, bypassing the built-in
// OpenAI-compatible client. Mostly useful for tests and local models.
func WithEmbedder(e domain.Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithCompleter swaps in a custom completion provider.
func WithCompleter(cm chatuc.Completer) Option {
	return func(c *clientConfig) { c.completer = cm }
}
