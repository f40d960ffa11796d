package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// Completer drives chat completions against the OpenAI-compatible API.
type Completer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// CompleterConfig holds the chat completion settings.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completion client.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Completer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		logger:      cfg.Logger,
	}
}

// Model returns the configured model name.
func (c *Completer) Model() string { return c.model }

// Complete implements domain.Completer for the non-streaming path.
func (c *Completer) Complete(ctx context.Context, turns []domain.ConversationTurn) (domain.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toMessages(turns),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("chat completion: %w: %w", err, domain.ErrCompletionProviderError)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("empty completion response: %w", domain.ErrCompletionProviderError)
	}

	return domain.Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// CompleteStream implements domain.Completer for the streaming path. The
// upstream timeout covers the whole stream, not individual fragments.
func (c *Completer) CompleteStream(ctx context.Context, turns []domain.ConversationTurn) (domain.CompletionStream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toMessages(turns),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open completion stream: %w: %w", err, domain.ErrCompletionProviderError)
	}

	return &chatStream{inner: stream, cancel: cancel}, nil
}

// chatStream adapts the SDK stream to domain.CompletionStream.
type chatStream struct {
	inner  *openai.ChatCompletionStream
	cancel context.CancelFunc
}

// Recv returns the next incremental fragment. io.EOF signals a clean end of
// stream; any other error is an upstream failure.
func (s *chatStream) Recv() (string, error) {
	resp, err := s.inner.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *chatStream) Close() error {
	s.cancel()
	return s.inner.Close()
}

func toMessages(turns []domain.ConversationTurn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		msgs[i] = openai.ChatCompletionMessage{Role: t.Role, Content: t.Content}
	}
	return msgs
}
