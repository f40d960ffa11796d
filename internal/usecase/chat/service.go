// Package chat drives retrieval-augmented chat completions: assemble the
// system prompt from retrieved excerpts, call the language model, and for
// the streaming path emit a typed event sequence with boundary-aware
// buffering and a canned fallback when the upstream model is unavailable.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	"github.com/konghaojie-k2/ai-project-space/internal/metrics"
)

// contextTopK is how many retrieved documents feed the system prompt.
const contextTopK = 5

// fallbackModel is the model name attributed to canned responses.
const fallbackModel = "fallback"

const errorEventContent = "抱歉，AI服务暂时不可用，请稍后重试。"

// Request is one chat turn to complete.
type Request struct {
	History        []domain.ConversationTurn
	ProjectID      string
	ProjectContext string
}

// Service orchestrates chat completions. All state is per-call; a Service
// is safe for concurrent use.
type Service struct {
	retriever Retriever
	completer Completer
	logger    *zap.Logger
}

// New creates a chat service.
func New(retriever Retriever, completer Completer, logger *zap.Logger) *Service {
	return &Service{retriever: retriever, completer: completer, logger: logger}
}

// Complete runs the non-streaming path. Upstream failure is absorbed into a
// canned fallback response, never returned as an error.
func (s *Service) Complete(ctx context.Context, req Request) (domain.ChatResponse, error) {
	question := lastUserMessage(req.History)
	docs := s.retrieveContext(ctx, question, req.ProjectID)
	turns := withSystemTurn(BuildSystemPrompt(req.ProjectContext, docs), req.History)

	comp, err := s.completer.Complete(ctx, turns)
	if err != nil {
		s.logger.Warn("Completion failed, serving fallback", zap.Error(err))
		metrics.CompletionRequestsTotal.WithLabelValues(s.completer.Model(), "fallback").Inc()

		content := FallbackResponse(question, req.ProjectContext)
		return domain.ChatResponse{
			Content: content,
			Model:   fallbackModel,
			Usage:   domain.Usage{CompletionTokens: wordCount(content), TotalTokens: wordCount(content)},
		}, nil
	}

	metrics.CompletionRequestsTotal.WithLabelValues(s.completer.Model(), "success").Inc()
	return domain.ChatResponse{Content: comp.Content, Model: comp.Model, Usage: comp.Usage}, nil
}

// CompleteStream runs the streaming path. The returned channel yields one
// start event, content events flushed on linguistic boundaries, and one end
// event carrying the full accumulated text; it is closed when the stream is
// over. Upstream failure switches to the keyword fallback mid-stream, so the
// concatenation of content payloads always equals the end event's text. An
// error event is emitted only if the orchestrator itself fails.
func (s *Service) CompleteStream(ctx context.Context, req Request) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent, 16)
	messageID := uuid.NewString()

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Streaming completion panicked", zap.Any("panic", r))
				ev := event(domain.StreamEventError, messageID)
				ev.Content = errorEventContent
				send(ctx, events, ev)
			}
		}()
		s.stream(ctx, req, messageID, events)
	}()
	return events
}

func (s *Service) stream(ctx context.Context, req Request, messageID string, events chan<- domain.StreamEvent) {
	started := time.Now()
	logger := s.logger.With(zap.String("message_id", messageID))

	if !send(ctx, events, event(domain.StreamEventStart, messageID)) {
		return
	}

	question := lastUserMessage(req.History)
	docs := s.retrieveContext(ctx, question, req.ProjectID)
	turns := withSystemTurn(BuildSystemPrompt(req.ProjectContext, docs), req.History)

	var total strings.Builder
	var buf boundaryBuffer
	emit := func(text string) bool {
		total.WriteString(text)
		ev := event(domain.StreamEventContent, messageID)
		ev.Content = text
		return send(ctx, events, ev)
	}

	outcome := "success"
	if err := s.relayUpstream(ctx, turns, &buf, emit); err != nil {
		if ctx.Err() != nil {
			// Caller is gone; stop flushing, leave emitted events as-is.
			return
		}
		logger.Warn("Streaming completion failed, switching to fallback", zap.Error(err))
		outcome = "fallback"
		if flushed, ok := buf.add(FallbackResponse(question, req.ProjectContext)); ok {
			if !emit(flushed) {
				return
			}
		}
	}
	if flushed, ok := buf.flush(); ok {
		if !emit(flushed) {
			return
		}
	}

	content := total.String()
	end := event(domain.StreamEventEnd, messageID)
	end.Content = content
	end.TotalTokens = wordCount(content)
	if !send(ctx, events, end) {
		return
	}

	metrics.CompletionRequestsTotal.WithLabelValues(s.completer.Model(), outcome).Inc()
	metrics.CompletionStreamDuration.WithLabelValues(s.completer.Model()).Observe(time.Since(started).Seconds())
	logger.Info("Streaming completion finished",
		zap.String("outcome", outcome),
		zap.Int("total_tokens", end.TotalTokens),
		zap.Duration("duration", time.Since(started)),
	)
}

// relayUpstream pumps upstream fragments through the boundary buffer. A nil
// return means the upstream finished cleanly; any error means the caller
// should take over with the fallback.
func (s *Service) relayUpstream(ctx context.Context, turns []domain.ConversationTurn, buf *boundaryBuffer, emit func(string) bool) error {
	stream, err := s.completer.CompleteStream(ctx, turns)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if flushed, ok := buf.add(frag); ok {
			if !emit(flushed) {
				return context.Canceled
			}
		}
	}
}

// retrieveContext fetches prompt documents for the question. Retrieval
// failure degrades to an uncontextualized prompt rather than failing the
// chat turn.
func (s *Service) retrieveContext(ctx context.Context, question, projectID string) []domain.RetrievalResult {
	if question == "" {
		return nil
	}
	docs, err := s.retriever.Retrieve(ctx, question, projectID, contextTopK)
	if err != nil {
		s.logger.Warn("Context retrieval failed, continuing without documents", zap.Error(err))
		return nil
	}
	return docs
}

func event(t domain.StreamEventType, messageID string) domain.StreamEvent {
	return domain.StreamEvent{Type: t, MessageID: messageID, Timestamp: time.Now().UTC()}
}

func send(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// wordCount approximates token usage the way the original UI displays it.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
