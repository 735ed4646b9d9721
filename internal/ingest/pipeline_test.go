package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/memoralabs/memora/internal/extract"
	"github.com/memoralabs/memora/internal/index"
	"github.com/memoralabs/memora/internal/storage"
)

// memDocs is an in-memory DocumentStore.
type memDocs struct {
	docs    map[string]storage.Document
	saveErr error
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string]storage.Document)}
}

func (m *memDocs) SaveDocument(d storage.Document) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.docs[d.ID] = d
	return nil
}

func (m *memDocs) GetDocument(id string) (storage.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return storage.Document{}, storage.ErrNotFound
	}
	return d, nil
}

func (m *memDocs) ListDocuments() ([]storage.Document, error) {
	out := make([]storage.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memDocs) DeleteDocument(id string) error {
	if _, ok := m.docs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

// countEmbedder embeds every text as a unit vector and can be told to fail
// once it has embedded failAfter texts.
type countEmbedder struct {
	embedded  int
	failAfter int
}

func (c *countEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		if c.failAfter > 0 && c.embedded >= c.failAfter {
			return nil, errors.New("embedding backend gone")
		}
		c.embedded++
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestPipeline(docs *memDocs, emb *countEmbedder) (*Pipeline, index.Index) {
	idx := index.NewMemory()
	// Small chunks so modest inputs produce several of them.
	p := NewPipeline(docs, idx, emb, Limits{ChunkChars: 100, OverlapChars: 20})
	return p, idx
}

func TestIngest_Success(t *testing.T) {
	docs := newMemDocs()
	p, idx := newTestPipeline(docs, &countEmbedder{})

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	doc, err := p.Ingest(context.Background(), []byte(text), "fox.txt")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.Filename != "fox.txt" || doc.ChunkCount < 2 {
		t.Errorf("doc = %+v, want fox.txt with multiple chunks", doc)
	}

	n, err := idx.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != doc.ChunkCount {
		t.Errorf("index holds %d chunks, metadata says %d", n, doc.ChunkCount)
	}
	if _, err := docs.GetDocument(doc.ID); err != nil {
		t.Errorf("metadata missing after ingest: %v", err)
	}

	// The indexed chunks are queryable.
	hits, err := idx.Query(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 3 || hits[0].DocumentID != doc.ID {
		t.Errorf("expected 3 hits for the new document, got %d", len(hits))
	}
}

func TestIngest_TooLarge(t *testing.T) {
	docs := newMemDocs()
	idx := index.NewMemory()
	p := NewPipeline(docs, idx, &countEmbedder{}, Limits{MaxBytes: 10})

	_, err := p.Ingest(context.Background(), []byte("this is more than ten bytes"), "big.txt")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestIngest_EmptyContent(t *testing.T) {
	docs := newMemDocs()
	p, idx := newTestPipeline(docs, &countEmbedder{})

	for _, data := range []string{"", "   \n\n\t  "} {
		_, err := p.Ingest(context.Background(), []byte(data), "blank.txt")
		if !errors.Is(err, ErrEmptyContent) {
			t.Fatalf("Ingest(%q) = %v, want ErrEmptyContent", data, err)
		}
	}
	if n, _ := idx.Count(context.Background()); n != 0 {
		t.Errorf("empty upload left %d chunks behind", n)
	}
}

func TestIngest_UnsupportedFormat(t *testing.T) {
	docs := newMemDocs()
	p, _ := newTestPipeline(docs, &countEmbedder{})

	_, err := p.Ingest(context.Background(), []byte("binary"), "photo.png")
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

// TestIngest_RollbackOnEmbedFailure forces the embedder to die partway
// through and verifies no chunk of the failed document is queryable.
func TestIngest_RollbackOnEmbedFailure(t *testing.T) {
	docs := newMemDocs()
	p, idx := newTestPipeline(docs, &countEmbedder{failAfter: 3})

	text := strings.Repeat("Rollback semantics matter for partial failures. ", 20)
	_, err := p.Ingest(context.Background(), []byte(text), "doomed.txt")
	if !errors.Is(err, ErrIngestionFailed) {
		t.Fatalf("err = %v, want ErrIngestionFailed", err)
	}

	if n, _ := idx.Count(context.Background()); n != 0 {
		t.Errorf("failed ingest left %d chunks queryable, want 0", n)
	}
	if list, _ := docs.ListDocuments(); len(list) != 0 {
		t.Errorf("failed ingest saved metadata: %v", list)
	}
}

func TestIngest_RollbackOnSaveFailure(t *testing.T) {
	docs := newMemDocs()
	docs.saveErr = errors.New("disk full")
	p, idx := newTestPipeline(docs, &countEmbedder{})

	_, err := p.Ingest(context.Background(), []byte(strings.Repeat("words ", 100)), "unsaved.txt")
	if !errors.Is(err, ErrIngestionFailed) {
		t.Fatalf("err = %v, want ErrIngestionFailed", err)
	}
	if n, _ := idx.Count(context.Background()); n != 0 {
		t.Errorf("metadata save failure left %d chunks queryable, want 0", n)
	}
}

func TestDelete_RemovesChunksAndMetadata(t *testing.T) {
	docs := newMemDocs()
	p, idx := newTestPipeline(docs, &countEmbedder{})

	keep, err := p.Ingest(context.Background(), []byte(strings.Repeat("keep me around ", 30)), "keep.txt")
	if err != nil {
		t.Fatalf("Ingest keep: %v", err)
	}
	gone, err := p.Ingest(context.Background(), []byte(strings.Repeat("delete me soon ", 30)), "gone.txt")
	if err != nil {
		t.Fatalf("Ingest gone: %v", err)
	}

	if err := p.Delete(context.Background(), gone.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	n, _ := idx.Count(context.Background())
	if n != keep.ChunkCount {
		t.Errorf("index holds %d chunks, want only the surviving document's %d", n, keep.ChunkCount)
	}
	if _, err := docs.GetDocument(gone.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted document still present: %v", err)
	}
}

func TestDelete_UnknownDocument(t *testing.T) {
	p, _ := newTestPipeline(newMemDocs(), &countEmbedder{})

	err := p.Delete(context.Background(), "no-such-doc")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
}
