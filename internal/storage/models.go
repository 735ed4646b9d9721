package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is one ingested upload. A Document row exists only when every one
// of its chunks made it into the vector index; the ingestion pipeline rolls
// back partial chunk sets before surfacing an error.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	TotalChars int       `json:"total_characters"`
	UploadedAt time.Time `json:"uploaded_at"`
}
