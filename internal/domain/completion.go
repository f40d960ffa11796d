package domain

import "context"

// Completer drives a chat completion against the language model.
type Completer interface {
	// Complete returns the full assistant reply in one call.
	Complete(ctx context.Context, turns []ConversationTurn) (Completion, error)

	// CompleteStream opens a streaming completion. The returned stream yields
	// incremental text fragments; Recv returns io.EOF when the upstream
	// signals completion. Callers must Close the stream.
	CompleteStream(ctx context.Context, turns []ConversationTurn) (CompletionStream, error)

	// Model returns the model name in use, for response attribution.
	Model() string
}

// Completion is a finished non-streaming reply.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// CompletionStream is an iterator over incremental completion fragments.
// Providers that cannot stream may yield the whole reply as one fragment.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}
