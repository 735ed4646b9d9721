package index

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Compile-time check that SQLite implements Index.
var _ Index = (*SQLite)(nil)

// SQLite provides vector storage and brute-force cosine similarity search
// over a chunk_vectors table. It is the default Index implementation; the
// table is created by the storage package's migrations.
//
// Search cost is linear in the number of stored chunks. That is fine for the
// document volumes a single instance serves; an ANN-backed implementation can
// replace this one behind the same interface if it ever is not.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an existing *sql.DB for vector operations.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Upsert inserts or replaces entries in a single transaction, so a batch is
// visible all at once or not at all. Replacing an existing ID keeps its
// original rowid, preserving insertion order for tie-breaking.
func (s *SQLite) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning upsert transaction: %v", ErrUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_vectors (id, document_id, ordinal, start_offset, end_offset, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			ordinal = excluded.ordinal,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			text_chunk = excluded.text_chunk,
			embedding = excluded.embedding`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: preparing upsert statement: %v", ErrUnavailable, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		blob := encodeFloat32s(e.Embedding)
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.DocumentID, e.Ordinal, e.Start, e.End, e.Text, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: upserting entry %s: %v", ErrUnavailable, e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing upsert: %v", ErrUnavailable, err)
	}
	return nil
}

// candidate holds only what the scan phase needs to rank a row.
type candidate struct {
	ID    string
	RowID int64
	Score float32
}

// Query performs brute-force cosine similarity search, returning the top-K
// most similar chunks sorted by descending score. Ties are broken by rowid,
// which tracks insertion order.
func (s *SQLite) Query(ctx context.Context, vector []float32, topK int) ([]Scored, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only rowid + id + embedding to find top-K candidates.
	rows, err := s.db.QueryContext(ctx, `SELECT rowid, id, embedding FROM chunk_vectors`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	h := &candidateHeap{}
	heap.Init(h)

	// Reusable buffer avoids per-row allocations while scanning.
	var buf []float32

	for rows.Next() {
		var rowID int64
		var id string
		var blob []byte
		if err := rows.Scan(&rowID, &id, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrUnavailable, err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		c := candidate{ID: id, RowID: rowID, Score: cosine(vector, buf, queryNorm)}
		if h.Len() < topK {
			heap.Push(h, c)
		} else if worseThan((*h)[0], c) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrUnavailable, err)
	}

	if h.Len() == 0 {
		return []Scored{}, nil
	}

	// Phase 2: fetch full entries only for the winners.
	winners := make(map[string]candidate, h.Len())
	ids := make([]string, 0, h.Len())
	for h.Len() > 0 {
		c := heap.Pop(h).(candidate)
		winners[c.ID] = c
		ids = append(ids, c.ID)
	}

	queryArgs := make([]any, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}
	fullQuery := `SELECT id, document_id, ordinal, start_offset, end_offset, text_chunk, embedding, created_at
		FROM chunk_vectors WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	fullRows, err := s.db.QueryContext(ctx, fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching top-K entries: %v", ErrUnavailable, err)
	}
	defer fullRows.Close()

	var results []Scored
	for fullRows.Next() {
		var e Entry
		var blob []byte
		var createdAt string
		if err := fullRows.Scan(&e.ID, &e.DocumentID, &e.Ordinal, &e.Start, &e.End, &e.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scanning full entry: %v", ErrUnavailable, err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", e.ID, err)
		}
		e.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", e.ID, err)
		}
		e.CreatedAt = t
		results = append(results, Scored{Entry: e, Score: winners[e.ID].Score})
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating full entries: %v", ErrUnavailable, err)
	}

	// The IN query does not preserve order; sort by score descending with
	// insertion-order tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return winners[results[i].ID].RowID < winners[results[j].ID].RowID
	})

	return results, nil
}

// DeleteByDocument removes every chunk of a document in one statement, so a
// concurrent Query never observes a partial subset.
func (s *SQLite) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("%w: deleting chunks for document %s: %v", ErrUnavailable, documentID, err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %v", ErrUnavailable, err)
	}
	return count, nil
}

// worseThan reports whether a ranks below b: lower score, or equal score but
// inserted later.
func worseThan(a, b candidate) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.RowID > b.RowID
}

// candidateHeap is a min-heap keeping the current top-K during the scan
// phase; the root is always the worst-ranked candidate.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return worseThan(h[i], h[j]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it across rows.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is the precomputed L2 norm
// of the query vector. Mismatched lengths and zero vectors score 0.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}
