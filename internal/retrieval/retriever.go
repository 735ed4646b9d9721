package retrieval

import (
	"context"
	"errors"
	"sort"

	"github.com/memoralabs/memora/internal/index"
	"github.com/memoralabs/memora/internal/token"
)

const (
	// DefaultTopK is the number of candidates fetched from the index per query.
	DefaultTopK = 5

	// DefaultTokenBudget caps the total estimated tokens of injected context.
	DefaultTokenBudget = 1500
)

// Block is a retrieved context fragment, possibly merged from several
// adjacent chunks of the same document.
type Block struct {
	DocumentID string
	Filename   string
	Text       string
	Score      float32
	Start      int
	End        int
}

// Result is the outcome of one retrieval pass. Degraded is set when the
// index was unreachable; the caller proceeds without context.
type Result struct {
	Query      string
	Blocks     []Block
	TokenCount int
	Degraded   bool
}

// FilenameResolver maps a document id to its display name. A nil resolver
// leaves Filename equal to the document id.
type FilenameResolver interface {
	DocumentFilename(id string) string
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder *Embedder
	idx      index.Index
	names    FilenameResolver
}

// NewRetriever creates a Retriever backed by the given Embedder and Index.
func NewRetriever(embedder *Embedder, idx index.Index, names FilenameResolver) *Retriever {
	return &Retriever{embedder: embedder, idx: idx, names: names}
}

// Retrieve embeds the query, fetches the topK most similar chunks, keeps as
// many as fit under tokenBudget in descending score order, and merges chunks
// that cover adjacent or overlapping spans of the same document. A chunk is
// kept whole or not at all; selection stops at the first chunk that would
// push the total over budget. An unreachable index yields a degraded empty
// result instead of an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK, tokenBudget int) (Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	res := Result{Query: query}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return res, err
	}

	scored, err := r.idx.Query(ctx, vec, topK)
	if err != nil {
		if errors.Is(err, index.ErrUnavailable) {
			res.Degraded = true
			return res, nil
		}
		return res, err
	}

	selected := selectWithinBudget(scored, tokenBudget)
	blocks := mergeAdjacent(selected)

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Score > blocks[j].Score
	})

	for i := range blocks {
		blocks[i].Filename = r.filename(blocks[i].DocumentID)
		res.TokenCount += token.Estimate(blocks[i].Text)
	}
	res.Blocks = blocks
	return res, nil
}

func (r *Retriever) filename(docID string) string {
	if r.names == nil {
		return docID
	}
	if name := r.names.DocumentFilename(docID); name != "" {
		return name
	}
	return docID
}

// selectWithinBudget walks candidates in descending score order and stops
// at the first chunk whose estimated tokens would exceed the budget.
func selectWithinBudget(scored []index.Scored, budget int) []index.Scored {
	var out []index.Scored
	used := 0
	for _, s := range scored {
		cost := token.Estimate(s.Text)
		if used+cost > budget {
			break
		}
		out = append(out, s)
		used += cost
	}
	return out
}

// mergeAdjacent collapses selected chunks whose character spans touch or
// overlap within the same document. The merged text keeps each character
// once; the merged score is the best of the parts.
func mergeAdjacent(selected []index.Scored) []Block {
	byDoc := make(map[string][]index.Scored)
	var docOrder []string
	for _, s := range selected {
		if _, ok := byDoc[s.DocumentID]; !ok {
			docOrder = append(docOrder, s.DocumentID)
		}
		byDoc[s.DocumentID] = append(byDoc[s.DocumentID], s)
	}

	var blocks []Block
	for _, docID := range docOrder {
		chunks := byDoc[docID]
		sort.Slice(chunks, func(i, j int) bool {
			return chunks[i].Start < chunks[j].Start
		})

		cur := Block{
			DocumentID: docID,
			Text:       chunks[0].Text,
			Score:      chunks[0].Score,
			Start:      chunks[0].Start,
			End:        chunks[0].End,
		}
		for _, ch := range chunks[1:] {
			if ch.Start <= cur.End {
				if ch.End > cur.End {
					overlap := cur.End - ch.Start
					cur.Text += ch.Text[overlap:]
					cur.End = ch.End
				}
				if ch.Score > cur.Score {
					cur.Score = ch.Score
				}
				continue
			}
			blocks = append(blocks, cur)
			cur = Block{
				DocumentID: docID,
				Text:       ch.Text,
				Score:      ch.Score,
				Start:      ch.Start,
				End:        ch.End,
			}
		}
		blocks = append(blocks, cur)
	}
	return blocks
}
