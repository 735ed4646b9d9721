// Package chat orchestrates a conversation turn: session lookup, retrieval,
// prompt assembly, model call, and history append. No session lock is held
// while the engine or the index is being called.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memoralabs/memora/internal/composer"
	"github.com/memoralabs/memora/internal/engine"
	"github.com/memoralabs/memora/internal/retrieval"
	"github.com/memoralabs/memora/internal/session"
)

// ErrInvalidInput reports an empty or whitespace-only message.
var ErrInvalidInput = errors.New("message is empty")

// DefaultChatTimeout bounds a single model call.
const DefaultChatTimeout = 120 * time.Second

// Options tunes the service. Zero values select the defaults.
type Options struct {
	ChatModel   string
	TopK        int
	TokenBudget int
	ChatTimeout time.Duration
}

// SendRequest is one user turn.
type SendRequest struct {
	SessionID string
	Text      string
	Mode      string
	UseRAG    bool
}

// SendResponse is the assistant's reply with session accounting.
type SendResponse struct {
	SessionID     string
	Mode          string
	Reply         string
	TokensUsed    int
	HistoryLength int
	Timestamp     time.Time
	Degraded      bool
}

// Service runs conversation turns.
type Service struct {
	sessions  *session.Store
	retriever *retrieval.Retriever
	composer  *composer.Composer
	engine    engine.Engine
	opts      Options
	logger    *slog.Logger
}

// NewService creates a Service with the given collaborators.
func NewService(sessions *session.Store, retriever *retrieval.Retriever, comp *composer.Composer, eng engine.Engine, opts Options) *Service {
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = DefaultChatTimeout
	}
	return &Service{
		sessions:  sessions,
		retriever: retriever,
		composer:  comp,
		engine:    eng,
		opts:      opts,
		logger:    slog.Default(),
	}
}

// SendTurn runs one conversation turn. Retrieval degradation is reported in
// the response, never as an error. Concurrent turns on the same session are
// safe: the history snapshot each turn sees may interleave, but every
// user/assistant pair is appended atomically.
func (s *Service) SendTurn(ctx context.Context, req SendRequest) (SendResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return SendResponse{}, ErrInvalidInput
	}

	snap := s.sessions.GetOrCreate(req.SessionID, req.Mode)

	var res *retrieval.Result
	if req.UseRAG {
		r, err := s.retriever.Retrieve(ctx, text, s.opts.TopK, s.opts.TokenBudget)
		if err != nil {
			return SendResponse{}, fmt.Errorf("retrieving context: %w", err)
		}
		res = &r
		if r.Degraded {
			s.logger.Warn("retrieval degraded, answering without context", "session_id", snap.ID)
		}
	}

	msgs := s.composer.Compose(snap.Mode, snap.Messages, res, text)

	chatCtx, cancel := context.WithTimeout(ctx, s.opts.ChatTimeout)
	defer cancel()
	result, err := s.engine.Chat(chatCtx, s.opts.ChatModel, msgs)
	if err != nil {
		return SendResponse{}, fmt.Errorf("chat completion: %w", err)
	}

	after := s.sessions.AppendTurn(snap.ID, text, result.Content, result.TokensUsed)

	return SendResponse{
		SessionID:     after.ID,
		Mode:          after.Mode,
		Reply:         result.Content,
		TokensUsed:    result.TokensUsed,
		HistoryLength: len(after.Messages),
		Timestamp:     after.LastActiveAt,
		Degraded:      res != nil && res.Degraded,
	}, nil
}

// SearchDocuments runs a retrieval pass without a conversation, for
// diagnostics and the MCP search tool.
func (s *Service) SearchDocuments(ctx context.Context, query string, k int) (retrieval.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return retrieval.Result{}, ErrInvalidInput
	}
	return s.retriever.Retrieve(ctx, query, k, s.opts.TokenBudget)
}

// ClearSession resets a session's history to the greeting.
func (s *Service) ClearSession(id string) session.Snapshot {
	return s.sessions.Clear(id)
}

// Sessions exposes the underlying store for boundary listings.
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// Modes lists the available chat personas.
func (s *Service) Modes() []composer.Mode {
	return composer.Modes()
}
