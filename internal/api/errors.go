package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/memoralabs/memora/internal/chat"
	"github.com/memoralabs/memora/internal/engine"
	"github.com/memoralabs/memora/internal/extract"
	"github.com/memoralabs/memora/internal/ingest"
	"github.com/memoralabs/memora/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps domain errors onto HTTP statuses. Timeouts get 504 so
// clients know the request is retryable; ingestion failures get 502 since
// the fault sits with a collaborator, not the caller.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput),
		errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrTooLarge),
		errors.Is(err, ingest.ErrEmptyContent):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, engine.ErrTimeout):
		httpError(w, http.StatusGatewayTimeout, "timeout_error", "%v", err)
	case errors.Is(err, ingest.ErrIngestionFailed):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
