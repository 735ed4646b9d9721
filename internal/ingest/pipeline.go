// Package ingest runs the document pipeline: extract text, split into
// chunks, embed, and index. A document becomes visible to retrieval only
// when the whole pipeline succeeds.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/memoralabs/memora/internal/chunker"
	"github.com/memoralabs/memora/internal/extract"
	"github.com/memoralabs/memora/internal/index"
	"github.com/memoralabs/memora/internal/storage"
)

var (
	// ErrTooLarge reports an upload over the configured size limit.
	ErrTooLarge = errors.New("document exceeds size limit")

	// ErrEmptyContent reports a document with no extractable text.
	ErrEmptyContent = errors.New("document has no extractable text")

	// ErrIngestionFailed wraps mid-pipeline failures. The document's chunks
	// are rolled back before this is returned.
	ErrIngestionFailed = errors.New("ingestion failed")
)

// DefaultMaxBytes caps uploads at 10MB.
const DefaultMaxBytes = 10 << 20

const embedBatchSize = 32

// DocumentStore persists document metadata.
type DocumentStore interface {
	SaveDocument(d storage.Document) error
	GetDocument(id string) (storage.Document, error)
	ListDocuments() ([]storage.Document, error)
	DeleteDocument(id string) error
}

// ContentEmbedder generates embeddings for batches of text.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Limits tunes the pipeline. Zero values select the defaults.
type Limits struct {
	MaxBytes     int
	ChunkChars   int
	OverlapChars int
}

// Pipeline ingests, lists, and deletes documents.
type Pipeline struct {
	docs     DocumentStore
	idx      index.Index
	embedder ContentEmbedder
	limits   Limits
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline with the given dependencies.
func NewPipeline(docs DocumentStore, idx index.Index, embedder ContentEmbedder, limits Limits) *Pipeline {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultMaxBytes
	}
	if limits.ChunkChars <= 0 {
		limits.ChunkChars = chunker.DefaultMaxChars
	}
	if limits.OverlapChars <= 0 {
		limits.OverlapChars = chunker.DefaultOverlapChars
	}
	return &Pipeline{
		docs:     docs,
		idx:      idx,
		embedder: embedder,
		limits:   limits,
		logger:   slog.Default(),
	}
}

// Ingest extracts text from data, chunks and embeds it, and indexes the
// result under a new document id. If any stage fails after indexing began,
// the document's chunks are removed so retrieval never sees a partial
// document.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, filename string) (storage.Document, error) {
	if len(data) > p.limits.MaxBytes {
		return storage.Document{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), p.limits.MaxBytes)
	}

	text, err := extract.Extract(data, filename)
	if err != nil {
		return storage.Document{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return storage.Document{}, fmt.Errorf("%w: %s", ErrEmptyContent, filename)
	}

	chunks := chunker.Split(text, p.limits.ChunkChars, p.limits.OverlapChars)

	doc := storage.Document{
		ID:         uuid.NewString(),
		Filename:   filename,
		ChunkCount: len(chunks),
		TotalChars: len(text),
		UploadedAt: time.Now().UTC(),
	}

	if err := p.indexChunks(ctx, doc.ID, chunks); err != nil {
		p.rollback(ctx, doc.ID)
		return storage.Document{}, fmt.Errorf("%w: %s: %w", ErrIngestionFailed, filename, err)
	}

	if err := p.docs.SaveDocument(doc); err != nil {
		p.rollback(ctx, doc.ID)
		return storage.Document{}, fmt.Errorf("%w: saving %s: %w", ErrIngestionFailed, filename, err)
	}

	p.logger.Info("document ingested",
		"document_id", doc.ID, "filename", filename, "chunks", len(chunks))
	return doc, nil
}

func (p *Pipeline) indexChunks(ctx context.Context, docID string, chunks []chunker.Chunk) error {
	now := time.Now().UTC()
	for base := 0; base < len(chunks); base += embedBatchSize {
		batch := chunks[base:min(base+embedBatchSize, len(chunks))]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding chunks %d-%d: %w", base, base+len(batch)-1, err)
		}

		entries := make([]index.Entry, len(batch))
		for i, ch := range batch {
			ordinal := base + i
			entries[i] = index.Entry{
				ID:         fmt.Sprintf("%s:%d", docID, ordinal),
				DocumentID: docID,
				Ordinal:    ordinal,
				Start:      ch.Start,
				End:        ch.End,
				Text:       ch.Text,
				Embedding:  vecs[i],
				CreatedAt:  now,
			}
		}
		if err := p.idx.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("indexing chunks %d-%d: %w", base, base+len(batch)-1, err)
		}
	}
	return nil
}

func (p *Pipeline) rollback(ctx context.Context, docID string) {
	if err := p.idx.DeleteByDocument(ctx, docID); err != nil {
		p.logger.Error("rollback failed, orphaned chunks may remain",
			"document_id", docID, "error", err)
	}
}

// Delete removes a document's chunks from the index and its metadata from
// the store. Returns storage.ErrNotFound for unknown ids.
func (p *Pipeline) Delete(ctx context.Context, docID string) error {
	if _, err := p.docs.GetDocument(docID); err != nil {
		return err
	}
	if err := p.idx.DeleteByDocument(ctx, docID); err != nil {
		return fmt.Errorf("removing chunks for %s: %w", docID, err)
	}
	return p.docs.DeleteDocument(docID)
}

// List returns all ingested documents, newest first.
func (p *Pipeline) List(ctx context.Context) ([]storage.Document, error) {
	return p.docs.ListDocuments()
}
