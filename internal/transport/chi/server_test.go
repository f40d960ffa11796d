package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	chatuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/chat"
	healthuc "github.com/konghaojie-k2/ai-project-space/internal/usecase/health"
	indexinguc "github.com/konghaojie-k2/ai-project-space/internal/usecase/indexing"
)

type fakeIndexing struct {
	chunks    int
	indexErr  error
	removed   bool
	removeErr error
	gotReq    indexinguc.Request
}

func (f *fakeIndexing) IndexDocument(_ context.Context, req indexinguc.Request) (int, error) {
	f.gotReq = req
	return f.chunks, f.indexErr
}

func (f *fakeIndexing) RemoveDocument(_ context.Context, id string) (bool, error) {
	return f.removed, f.removeErr
}

type fakeRetrieval struct {
	results []domain.RetrievalResult
	err     error
}

func (f *fakeRetrieval) Retrieve(context.Context, string, string, int) ([]domain.RetrievalResult, error) {
	return f.results, f.err
}

type fakeChat struct {
	resp   domain.ChatResponse
	events []domain.StreamEvent
}

func (f *fakeChat) Complete(context.Context, chatuc.Request) (domain.ChatResponse, error) {
	return f.resp, nil
}

func (f *fakeChat) CompleteStream(context.Context, chatuc.Request) <-chan domain.StreamEvent {
	ch := make(chan domain.StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type fakeHealth struct{ status healthuc.Status }

func (f *fakeHealth) Check(context.Context) healthuc.Status { return f.status }

func newTestServer(ix *fakeIndexing, ret *fakeRetrieval, ch *fakeChat, h *fakeHealth) http.Handler {
	if ix == nil {
		ix = &fakeIndexing{}
	}
	if ret == nil {
		ret = &fakeRetrieval{}
	}
	if ch == nil {
		ch = &fakeChat{}
	}
	if h == nil {
		h = &fakeHealth{status: healthuc.Status{Status: "healthy"}}
	}
	r := chi.NewRouter()
	NewServer(ix, ret, ch, h, zap.NewNop()).Routes(r)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIndexDocument(t *testing.T) {
	ix := &fakeIndexing{chunks: 3}
	rec := doJSON(t, newTestServer(ix, nil, nil, nil), http.MethodPost, "/v1/documents",
		`{"document_id":"d1","document_name":"a.md","project_id":"p1","text":"body"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp indexDocumentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Chunks != 3 {
		t.Errorf("resp = %+v, want success with 3 chunks", resp)
	}
	if ix.gotReq.DocumentID != "d1" || ix.gotReq.ProjectID != "p1" {
		t.Errorf("service got %+v", ix.gotReq)
	}
}

func TestIndexDocument_MissingID(t *testing.T) {
	rec := doJSON(t, newTestServer(nil, nil, nil, nil), http.MethodPost, "/v1/documents",
		`{"text":"body"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), codeValidationFailed) {
		t.Errorf("body = %s, want %s", rec.Body, codeValidationFailed)
	}
}

func TestIndexDocument_InvalidBody(t *testing.T) {
	rec := doJSON(t, newTestServer(nil, nil, nil, nil), http.MethodPost, "/v1/documents", "{not json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRemoveDocument(t *testing.T) {
	rec := doJSON(t, newTestServer(&fakeIndexing{removed: true}, nil, nil, nil),
		http.MethodDelete, "/v1/documents/d1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, newTestServer(&fakeIndexing{removed: false}, nil, nil, nil),
		http.MethodDelete, "/v1/documents/d1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSearch(t *testing.T) {
	ret := &fakeRetrieval{results: []domain.RetrievalResult{
		{DocumentID: "d1", DocumentName: "a.md", Excerpt: "text", Score: 0.9},
	}}
	rec := doJSON(t, newTestServer(nil, ret, nil, nil), http.MethodPost, "/v1/search",
		`{"query":"q","top_k":5}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].DocumentID != "d1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSearch_DimMismatchMapsTo400(t *testing.T) {
	ret := &fakeRetrieval{err: fmt.Errorf("search index: %w", domain.ErrVectorDimMismatch)}
	rec := doJSON(t, newTestServer(nil, ret, nil, nil), http.MethodPost, "/v1/search", `{"query":"q"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), codeVectorDimMismatch) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestSearch_IndexClosedMapsTo503(t *testing.T) {
	ret := &fakeRetrieval{err: fmt.Errorf("search index: %w", domain.ErrIndexClosed)}
	rec := doJSON(t, newTestServer(nil, ret, nil, nil), http.MethodPost, "/v1/search", `{"query":"q"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestChatCompletion(t *testing.T) {
	ch := &fakeChat{resp: domain.ChatResponse{Content: "hi", Model: "m"}}
	rec := doJSON(t, newTestServer(nil, nil, ch, nil), http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"hello"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp domain.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestChatCompletion_EmptyMessages(t *testing.T) {
	rec := doJSON(t, newTestServer(nil, nil, nil, nil), http.MethodPost, "/v1/chat/completions",
		`{"messages":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletionStream(t *testing.T) {
	now := time.Now().UTC()
	ch := &fakeChat{events: []domain.StreamEvent{
		{Type: domain.StreamEventStart, MessageID: "m1", Timestamp: now},
		{Type: domain.StreamEventContent, MessageID: "m1", Content: "Hello ", Timestamp: now},
		{Type: domain.StreamEventContent, MessageID: "m1", Content: "world.", Timestamp: now},
		{Type: domain.StreamEventEnd, MessageID: "m1", Content: "Hello world.", TotalTokens: 2, Timestamp: now},
	}}
	rec := doJSON(t, newTestServer(nil, nil, ch, nil), http.MethodPost, "/v1/chat/completions/stream",
		`{"messages":[{"role":"user","content":"hello"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q", got)
	}

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 5 {
		t.Fatalf("frames = %d, want 5: %q", len(frames), frames)
	}
	if frames[4] != "data: [DONE]" {
		t.Errorf("terminal frame = %q", frames[4])
	}

	var first domain.StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first); err != nil {
		t.Fatalf("decode first frame: %v", err)
	}
	if first.Type != domain.StreamEventStart || first.MessageID != "m1" {
		t.Errorf("first event = %+v", first)
	}

	var end domain.StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[3], "data: ")), &end); err != nil {
		t.Fatalf("decode end frame: %v", err)
	}
	if end.Content != "Hello world." || end.TotalTokens != 2 {
		t.Errorf("end event = %+v", end)
	}
}

func TestHealthz(t *testing.T) {
	h := &fakeHealth{status: healthuc.Status{
		Status: "healthy", EmbeddingReady: true, IndexReady: true, ChunkCount: 10,
	}}
	rec := doJSON(t, newTestServer(nil, nil, nil, h), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"chunk_count":10`) {
		t.Errorf("body = %s", rec.Body)
	}

	h.status = healthuc.Status{Status: "degraded", IndexReady: true}
	rec = doJSON(t, newTestServer(nil, nil, nil, h), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", rec.Code)
	}
}
