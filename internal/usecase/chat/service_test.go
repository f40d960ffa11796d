package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	"github.com/konghaojie-k2/ai-project-space/internal/metrics"
)

func init() { metrics.RegisterAIMetrics() }

type scriptedStream struct {
	frags  []string
	err    error // returned after frags run out; nil means clean EOF
	closed bool
}

func (s *scriptedStream) Recv() (string, error) {
	if len(s.frags) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	frag := s.frags[0]
	s.frags = s.frags[1:]
	return frag, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeCompleter struct {
	completion  domain.Completion
	completeErr error
	stream      *scriptedStream
	openErr     error
	gotTurns    []domain.ConversationTurn
}

func (f *fakeCompleter) Complete(_ context.Context, turns []domain.ConversationTurn) (domain.Completion, error) {
	f.gotTurns = turns
	if f.completeErr != nil {
		return domain.Completion{}, f.completeErr
	}
	return f.completion, nil
}

func (f *fakeCompleter) CompleteStream(_ context.Context, turns []domain.ConversationTurn) (domain.CompletionStream, error) {
	f.gotTurns = turns
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func (f *fakeCompleter) Model() string { return "test-model" }

type fakeRetriever struct {
	docs       []domain.RetrievalResult
	err        error
	gotQuery   string
	gotProject string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query, projectID string, _ int) ([]domain.RetrievalResult, error) {
	f.gotQuery = query
	f.gotProject = projectID
	return f.docs, f.err
}

func userTurn(content string) []domain.ConversationTurn {
	return []domain.ConversationTurn{{Role: domain.RoleUser, Content: content}}
}

func collect(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func contentOf(events []domain.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == domain.StreamEventContent {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func TestComplete_Success(t *testing.T) {
	completer := &fakeCompleter{completion: domain.Completion{
		Content: "answer",
		Model:   "test-model",
		Usage:   domain.Usage{TotalTokens: 7},
	}}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	resp, err := svc.Complete(context.Background(), Request{History: userTurn("问题")})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestComplete_SystemTurnCarriesRetrievedDocs(t *testing.T) {
	retriever := &fakeRetriever{docs: []domain.RetrievalResult{
		{DocumentName: "design.md", Excerpt: "the excerpt", Score: 0.8},
	}}
	completer := &fakeCompleter{}
	svc := New(retriever, completer, zap.NewNop())

	_, err := svc.Complete(context.Background(), Request{
		History:   userTurn("架构问题"),
		ProjectID: "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, "架构问题", retriever.gotQuery)
	assert.Equal(t, "p1", retriever.gotProject)
	require.NotEmpty(t, completer.gotTurns)
	require.Equal(t, domain.RoleSystem, completer.gotTurns[0].Role)
	assert.Contains(t, completer.gotTurns[0].Content, "design.md")
	assert.Contains(t, completer.gotTurns[0].Content, "the excerpt")
}

func TestComplete_FallbackOnUpstreamFailure(t *testing.T) {
	completer := &fakeCompleter{completeErr: errors.New("upstream down")}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	resp, err := svc.Complete(context.Background(), Request{History: userTurn("数据库该怎么选型")})
	require.NoError(t, err, "upstream failure must not surface as an error")
	assert.Equal(t, fallbackModel, resp.Model)
	assert.Contains(t, resp.Content, "数据存储策略")
}

func TestCompleteStream_EventSequence(t *testing.T) {
	completer := &fakeCompleter{stream: &scriptedStream{frags: []string{"Hello ", "wor", "ld."}}}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	events := collect(t, svc.CompleteStream(context.Background(), Request{History: userTurn("hi")}))
	require.GreaterOrEqual(t, len(events), 3)

	assert.Equal(t, domain.StreamEventStart, events[0].Type)
	end := events[len(events)-1]
	require.Equal(t, domain.StreamEventEnd, end.Type)

	assert.Equal(t, "Hello world.", end.Content)
	assert.Equal(t, end.Content, contentOf(events), "content payloads must concatenate to the end event text")
	assert.Equal(t, 2, end.TotalTokens)
	assert.True(t, completer.stream.closed)

	for _, ev := range events {
		assert.Equal(t, events[0].MessageID, ev.MessageID, "one correlation id across the stream")
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestCompleteStream_FlushesOnBoundaries(t *testing.T) {
	completer := &fakeCompleter{stream: &scriptedStream{frags: []string{"One ", "two", " three"}}}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	events := collect(t, svc.CompleteStream(context.Background(), Request{History: userTurn("hi")}))

	var contents []string
	for _, ev := range events {
		if ev.Type == domain.StreamEventContent {
			contents = append(contents, ev.Content)
		}
	}
	// "One " flushes on its trailing space; "two" and " three" merge in the
	// buffer and only drain at end of stream.
	assert.Equal(t, []string{"One ", "two three"}, contents)
}

func TestCompleteStream_EmptyFragmentsDiscarded(t *testing.T) {
	completer := &fakeCompleter{stream: &scriptedStream{frags: []string{"", "abc", "", "def."}}}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	events := collect(t, svc.CompleteStream(context.Background(), Request{History: userTurn("hi")}))
	assert.Equal(t, "abcdef.", contentOf(events))
}

func TestCompleteStream_OpenFailureStreamsFallback(t *testing.T) {
	completer := &fakeCompleter{openErr: errors.New("connect timeout")}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	events := collect(t, svc.CompleteStream(context.Background(), Request{History: userTurn("系统架构怎么设计")}))
	require.NotEmpty(t, events)

	assert.Equal(t, domain.StreamEventStart, events[0].Type)
	end := events[len(events)-1]
	require.Equal(t, domain.StreamEventEnd, end.Type, "upstream outage ends with end, never error")
	assert.NotEmpty(t, end.Content)
	assert.Contains(t, end.Content, "架构设计原则")
	assert.Equal(t, end.Content, contentOf(events))

	for _, ev := range events {
		assert.NotEqual(t, domain.StreamEventError, ev.Type)
	}
}

func TestCompleteStream_MidStreamFailureKeepsPartialText(t *testing.T) {
	completer := &fakeCompleter{stream: &scriptedStream{
		frags: []string{"Partial answer. "},
		err:   errors.New("connection reset"),
	}}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	events := collect(t, svc.CompleteStream(context.Background(), Request{History: userTurn("随便聊聊")}))
	end := events[len(events)-1]
	require.Equal(t, domain.StreamEventEnd, end.Type)

	assert.True(t, strings.HasPrefix(end.Content, "Partial answer. "),
		"text emitted before the failure stays in the final message")
	assert.Greater(t, len(end.Content), len("Partial answer. "), "fallback text follows the partial answer")
	assert.Equal(t, end.Content, contentOf(events))
}

func TestCompleteStream_RetrievalFailureDegrades(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("index offline")}
	completer := &fakeCompleter{stream: &scriptedStream{frags: []string{"ok."}}}
	svc := New(retriever, completer, zap.NewNop())

	events := collect(t, svc.CompleteStream(context.Background(), Request{History: userTurn("hi")}))
	end := events[len(events)-1]
	require.Equal(t, domain.StreamEventEnd, end.Type)
	assert.Equal(t, "ok.", end.Content)
	assert.NotContains(t, completer.gotTurns[0].Content, "相关文档内容")
}

func TestCompleteStream_CancelStopsFlushing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completer := &fakeCompleter{stream: &scriptedStream{frags: []string{"never delivered."}}}
	svc := New(&fakeRetriever{}, completer, zap.NewNop())

	events := collect(t, svc.CompleteStream(ctx, Request{History: userTurn("hi")}))
	for _, ev := range events {
		assert.NotEqual(t, domain.StreamEventEnd, ev.Type, "cancelled stream must not fabricate an end event")
	}
}
