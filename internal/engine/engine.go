// Package engine abstracts the external inference backend: chat completion
// and text embedding. The core treats both as collaborators that may be slow,
// fail, or time out; it never retries internally.
package engine

import (
	"context"
	"errors"
)

// ErrTimeout reports that an external call exceeded its deadline. The
// condition is retryable; retry policy belongs to the caller, not here.
var ErrTimeout = errors.New("external call timed out")

// Message is a chat message in the backend's wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is a completed generation with the backend's token accounting.
type ChatResult struct {
	Content    string
	TokensUsed int
}

// Engine is a local or remote inference backend. Every method honors the
// context deadline and maps deadline expiry to ErrTimeout.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's reply.
	Chat(ctx context.Context, model string, messages []Message) (ChatResult, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of the models the backend serves.
	ListModels(ctx context.Context) ([]string, error)
}
