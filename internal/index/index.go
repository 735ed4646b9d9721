// Package index wraps the similarity-search backend with the upsert, query,
// and delete contract the ingestion pipeline and retrieval engine rely on.
package index

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the search backend could not be reached or
// errored. Callers use it to distinguish "no matches" from "search failed".
var ErrUnavailable = errors.New("index unavailable")

// Entry is one indexed chunk: its text, position within the parent document,
// and embedding vector.
type Entry struct {
	ID         string
	DocumentID string
	Ordinal    int
	Start      int
	End        int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// Scored is an Entry with its similarity score against a query vector.
type Scored struct {
	Entry
	Score float32
}

// Index is the contract over the similarity-search backend.
//
// Upsert is idempotent: re-upserting an ID replaces the stored vector.
// Query results are sorted by descending similarity; equal scores are broken
// by insertion order, so ranking is stable. DeleteByDocument is atomic from
// the caller's perspective: a concurrent Query sees either all of a
// document's chunks or none of them.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, topK int) ([]Scored, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}
