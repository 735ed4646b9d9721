package index

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that Memory implements Index.
var _ Index = (*Memory)(nil)

// Memory is an in-memory Index using brute-force cosine similarity. It backs
// tests and disk-free runs; contents do not survive the process.
type Memory struct {
	mu      sync.RWMutex
	seq     int64
	entries map[string]memoryEntry
}

type memoryEntry struct {
	Entry
	seq int64
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Upsert inserts or replaces entries under one lock acquisition, so the batch
// becomes visible atomically. Replacing an ID keeps its original insertion
// sequence for tie-breaking.
func (m *Memory) Upsert(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if prev, ok := m.entries[e.ID]; ok {
			m.entries[e.ID] = memoryEntry{Entry: e, seq: prev.seq}
			continue
		}
		m.seq++
		m.entries[e.ID] = memoryEntry{Entry: e, seq: m.seq}
	}
	return nil
}

// Query returns the top-K entries by cosine similarity, descending, ties
// broken by insertion order.
func (m *Memory) Query(ctx context.Context, vector []float32, topK int) ([]Scored, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	m.mu.RLock()
	type scoredSeq struct {
		Scored
		seq int64
	}
	scored := make([]scoredSeq, 0, len(m.entries))
	for _, e := range m.entries {
		scored = append(scored, scoredSeq{
			Scored: Scored{Entry: e.Entry, Score: cosine(vector, e.Embedding, queryNorm)},
			seq:    e.seq,
		})
	}
	m.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].seq < scored[j].seq
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	results := make([]Scored, topK)
	for i := 0; i < topK; i++ {
		results[i] = scored[i].Scored
	}
	return results, nil
}

// DeleteByDocument removes all chunks of a document under one lock
// acquisition; concurrent queries see the full set or none of it.
func (m *Memory) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

// Count returns the number of indexed chunks.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
