package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrNoIndex is returned when a domain has no built index.
var ErrNoIndex = errors.New("knowledge index not built")

// Chunk is one indexed passage.
type Chunk struct {
	Seq    int
	Text   string
	Vector []float32
}

// Result is a scored search hit.
type Result struct {
	Chunk Chunk
	Score float64
}

// Index is an immutable cosine-similarity index over one document.
type Index struct {
	name     string
	chunks   []Chunk
	embedder Embedder
}

// NewIndex splits text, embeds every chunk, and returns the index.
func NewIndex(ctx context.Context, name, text string, embedder Embedder, splitter *Splitter) (*Index, error) {
	if splitter == nil {
		splitter = NewSplitter()
	}
	texts := splitter.Split(text)
	if len(texts) == 0 {
		return nil, fmt.Errorf("index %s: document is empty", name)
	}
	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("index %s: embedding chunks: %w", name, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("index %s: got %d vectors for %d chunks", name, len(vecs), len(texts))
	}
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Seq: i, Text: t, Vector: vecs[i]}
	}
	return &Index{name: name, chunks: chunks, embedder: embedder}, nil
}

// Name returns the index name.
func (ix *Index) Name() string { return ix.name }

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Search embeds query and returns the k most similar chunks, best first.
// Equal scores keep document order.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 3
	}
	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors", len(vecs))
	}
	q := vecs[0]

	results := make([]Result, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		results = append(results, Result{Chunk: c, Score: Cosine(q, c.Vector)})
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Passages runs Search and joins the hit texts with a blank line.
func (ix *Index) Passages(ctx context.Context, query string, k int) (string, error) {
	hits, err := ix.Search(ctx, query, k)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

// Cosine returns the cosine similarity of a and b. Mismatched or zero
// vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
