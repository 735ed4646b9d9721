// Package api implements the HTTP boundary: chat, document management,
// diagnostic search, and health.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/memoralabs/memora/internal/chat"
	"github.com/memoralabs/memora/internal/engine"
	"github.com/memoralabs/memora/internal/ingest"
	"github.com/memoralabs/memora/internal/retrieval"
)

const maxRequestBodySize = 1 << 20 // 1MB for JSON bodies; uploads have their own limit.

// Deps holds the collaborators behind the HTTP surface.
type Deps struct {
	Chat           *chat.Service
	Ingest         *ingest.Pipeline
	Engine         engine.Engine
	MaxUploadBytes int64
}

// NewHandler returns the REST API router.
func NewHandler(deps Deps) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = ingest.DefaultMaxBytes
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps.Engine))
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", handleChat(deps.Chat))
		r.Get("/chat/modes", handleModes(deps.Chat))
		r.Get("/chat/sessions", handleSessions(deps.Chat))
		r.Post("/chat/sessions/{id}/clear", handleClearSession(deps.Chat))
		r.Post("/chat/rag/search", handleSearch(deps.Chat))

		r.Post("/upload", handleUpload(deps.Ingest, deps.MaxUploadBytes))
		r.Get("/documents", handleListDocuments(deps.Ingest))
		r.Delete("/documents/{id}", handleDeleteDocument(deps.Ingest))
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(eng engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"engine_running": eng.IsRunning(r.Context()),
		})
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	UseRAG    bool   `json:"use_rag"`
}

type chatResponse struct {
	Response      string    `json:"response"`
	SessionID     string    `json:"session_id"`
	Mode          string    `json:"mode"`
	Timestamp     time.Time `json:"timestamp"`
	TokensUsed    int       `json:"tokens_used"`
	HistoryLength int       `json:"history_length"`
	Degraded      bool      `json:"degraded,omitempty"`
}

func handleChat(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		resp, err := svc.SendTurn(r.Context(), chat.SendRequest{
			SessionID: req.SessionID,
			Text:      req.Message,
			Mode:      req.Mode,
			UseRAG:    req.UseRAG,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, chatResponse{
			Response:      resp.Reply,
			SessionID:     resp.SessionID,
			Mode:          resp.Mode,
			Timestamp:     resp.Timestamp,
			TokensUsed:    resp.TokensUsed,
			HistoryLength: resp.HistoryLength,
			Degraded:      resp.Degraded,
		})
	}
}

func handleModes(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"modes": svc.Modes()})
	}
}

func handleSessions(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := svc.Sessions().ActiveSessions()
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions": ids,
			"count":    len(ids),
		})
	}
}

func handleClearSession(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		snap := svc.ClearSession(id)
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":     snap.ID,
			"mode":           snap.Mode,
			"history_length": len(snap.Messages),
		})
	}
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchBlock struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

func handleSearch(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := svc.SearchDocuments(r.Context(), req.Query, req.K)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, searchResult(res))
	}
}

func searchResult(res retrieval.Result) map[string]any {
	blocks := make([]searchBlock, len(res.Blocks))
	for i, b := range res.Blocks {
		blocks[i] = searchBlock{
			DocumentID: b.DocumentID,
			Filename:   b.Filename,
			Text:       b.Text,
			Score:      b.Score,
			Start:      b.Start,
			End:        b.End,
		}
	}
	return map[string]any{
		"query":       res.Query,
		"results":     blocks,
		"count":       len(blocks),
		"token_count": res.TokenCount,
		"degraded":    res.Degraded,
	}
}

func handleUpload(pipe *ingest.Pipeline, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		doc, err := pipe.Ingest(r.Context(), data, header.Filename)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"document_id":      doc.ID,
			"filename":         doc.Filename,
			"chunk_count":      doc.ChunkCount,
			"total_characters": doc.TotalChars,
		})
	}
}

func handleListDocuments(pipe *ingest.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := pipe.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"documents": docs,
			"count":     len(docs),
		})
	}
}

func handleDeleteDocument(pipe *ingest.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := pipe.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	}
}
