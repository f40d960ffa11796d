// Package projectspace is the embedded client for the indexing, retrieval
// and chat engine: the same services the HTTP server wires, usable in
// process without running a server.
package projectspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/chunker"
	dbRedis "github.com/konghaojie-k2/ai-project-space/internal/db/redis"
	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	"github.com/konghaojie-k2/ai-project-space/internal/index"
	"github.com/konghaojie-k2/ai-project-space/internal/metrics"
	"github.com/konghaojie-k2/ai-project-space/internal/repository/embcache"
	openaiTransport "github.com/konghaojie-k2/ai-project-space/internal/transport/openai"
	chatuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/chat"
	embeddinguc "github.com/konghaojie-k2/ai-project-space/internal/usecase/embedding"
	indexinguc "github.com/konghaojie-k2/ai-project-space/internal/usecase/indexing"
	retrievaluc "github.com/konghaojie-k2/ai-project-space/internal/usecase/retrieval"
)

// Document is one document to index.
type Document struct {
	ID        string
	Name      string
	ProjectID string
	Text      string
	Metadata  map[string]string
}

// Result is one retrieval hit.
type Result struct {
	DocumentID   string
	DocumentName string
	Excerpt      string
	Score        float64
	Metadata     map[string]string
}

// Turn is one chat message.
type Turn struct {
	Role    string
	Content string
}

// Chat roles.
const (
	RoleUser      = domain.RoleUser
	RoleAssistant = domain.RoleAssistant
	RoleSystem    = domain.RoleSystem
)

// Response is a finished non-streaming chat reply.
type Response struct {
	Content     string
	Model       string
	TotalTokens int
}

// Event is one frame of a streaming chat completion.
type Event struct {
	Type        string
	MessageID   string
	Content     string
	TotalTokens int
	Timestamp   time.Time
}

// Client is the embedded engine entry point.
type Client struct {
	index     *index.Index
	store     *dbRedis.Store
	indexing  *indexinguc.Service
	retrieval *retrievaluc.Service
	chat      *chatuc.Service
}

// New creates an engine Client, loading any persisted index snapshot from
// the data directory.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		dimensions: 2560,
		batchSize:  16,
		timeout:    30 * time.Second,
		dataDir:    "data",
		chunkSize:  1000,
		overlap:    200,
		excerptLen: 200,
		cacheTTL:   7 * 24 * time.Hour,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	if cfg.embedder == nil && (cfg.apiKey == "" || cfg.embeddingModel == "") {
		return nil, errors.New("projectspace: embedding provider required (WithAPIKey and WithEmbeddingModel, or WithEmbedder)")
	}
	if cfg.completer == nil && (cfg.apiKey == "" || cfg.llmModel == "") {
		return nil, errors.New("projectspace: completion provider required (WithAPIKey and WithLLM, or WithCompleter)")
	}

	metrics.RegisterAIMetrics()

	c := &Client{}

	base := cfg.embedder
	if base == nil {
		base = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.apiKey,
			BaseURL:    cfg.baseURL,
			Model:      cfg.embeddingModel,
			Dimensions: cfg.dimensions,
			BatchSize:  cfg.batchSize,
			Timeout:    cfg.timeout,
			Logger:     cfg.logger,
		})
	}

	if len(cfg.cacheAddrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.cacheAddrs,
			Password: cfg.cachePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("projectspace: create cache store: %w", err)
		}
		c.store = store
		base = embcache.New(base, store, cfg.cacheTTL, metrics.EmbeddingCacheTotal, cfg.logger)
	}
	embedder := embeddinguc.New(base, cfg.dimensions, cfg.embeddingModel, cfg.logger)

	completer := cfg.completer
	if completer == nil {
		completer = openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
			APIKey:      cfg.apiKey,
			BaseURL:     cfg.baseURL,
			Model:       cfg.llmModel,
			MaxTokens:   cfg.maxTokens,
			Temperature: cfg.temperature,
			Timeout:     cfg.timeout,
			Logger:      cfg.logger,
		})
	}

	ix, err := index.Open(cfg.dataDir, cfg.dimensions, cfg.logger)
	if err != nil {
		c.closeStore()
		return nil, fmt.Errorf("projectspace: open index: %w", err)
	}
	c.index = ix

	split := chunker.New(cfg.chunkSize, cfg.overlap)
	c.indexing = indexinguc.New(split, embedder, ix, cfg.logger)
	c.retrieval = retrievaluc.New(embedder, ix, cfg.excerptLen, cfg.logger)
	c.chat = chatuc.New(c.retrieval, completer, cfg.logger)

	return c, nil
}

// IndexDocument chunks, embeds and indexes one document, replacing any
// earlier version. Returns the number of chunks indexed.
func (c *Client) IndexDocument(ctx context.Context, doc Document) (int, error) {
	return c.indexing.IndexDocument(ctx, indexinguc.Request{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		ProjectID:    doc.ProjectID,
		Text:         doc.Text,
		Metadata:     doc.Metadata,
	})
}

// RemoveDocument drops a document from the index. Returns false when it was
// not indexed.
func (c *Client) RemoveDocument(ctx context.Context, documentID string) (bool, error) {
	return c.indexing.RemoveDocument(ctx, documentID)
}

// Search returns up to topK scored excerpts for query, one per document.
func (c *Client) Search(ctx context.Context, query, projectID string, topK int) ([]Result, error) {
	results, err := c.retrieval.Retrieve(ctx, query, projectID, topK)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			Excerpt:      r.Excerpt,
			Score:        r.Score,
			Metadata:     r.Metadata,
		}
	}
	return out, nil
}

// Complete runs one non-streaming chat turn with retrieval-augmented context.
func (c *Client) Complete(ctx context.Context, history []Turn, projectID, projectContext string) (Response, error) {
	resp, err := c.chat.Complete(ctx, chatuc.Request{
		History:        toTurns(history),
		ProjectID:      projectID,
		ProjectContext: projectContext,
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		Content:     resp.Content,
		Model:       resp.Model,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// CompleteStream runs one streaming chat turn. The channel closes when the
// stream ends.
func (c *Client) CompleteStream(ctx context.Context, history []Turn, projectID, projectContext string) <-chan Event {
	events := c.chat.CompleteStream(ctx, chatuc.Request{
		History:        toTurns(history),
		ProjectID:      projectID,
		ProjectContext: projectContext,
	})

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for ev := range events {
			out <- Event{
				Type:        string(ev.Type),
				MessageID:   ev.MessageID,
				Content:     ev.Content,
				TotalTokens: ev.TotalTokens,
				Timestamp:   ev.Timestamp,
			}
		}
	}()
	return out
}

// Close saves the index and releases resources.
func (c *Client) Close() error {
	var saveErr error
	if c.index != nil {
		saveErr = c.index.Save()
		_ = c.index.Close()
	}
	c.closeStore()
	return saveErr
}

func (c *Client) closeStore() {
	if c.store != nil {
		c.store.Close()
	}
}

func toTurns(history []Turn) []domain.ConversationTurn {
	turns := make([]domain.ConversationTurn, len(history))
	for i, t := range history {
		turns[i] = domain.ConversationTurn{Role: t.Role, Content: t.Content}
	}
	return turns
}
