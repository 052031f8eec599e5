package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// EmbeddingCache persists vectors by content hash.
type EmbeddingCache interface {
	GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error
}

// ContentHash is the cache key for a text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CachedEmbedder consults a cache before calling the wrapped embedder and
// only embeds the texts it has not seen.
type CachedEmbedder struct {
	inner Embedder
	cache EmbeddingCache
}

// NewCachedEmbedder wraps inner with cache.
func NewCachedEmbedder(inner Embedder, cache EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) Name() string { return c.inner.Name() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := c.inner.Name()
	hashes := make([]string, len(texts))
	for i, t := range texts {
		hashes[i] = ContentHash(t)
	}

	hits, err := c.cache.GetEmbeddings(ctx, model, hashes)
	if err != nil {
		return nil, fmt.Errorf("reading embedding cache: %w", err)
	}

	var (
		missTexts []string
		missIdx   []int
	)
	seen := map[string]bool{}
	for i, h := range hashes {
		if _, ok := hits[h]; ok || seen[h] {
			continue
		}
		seen[h] = true
		missTexts = append(missTexts, texts[i])
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		fresh := make(map[string][]float32, len(vecs))
		for j, v := range vecs {
			h := hashes[missIdx[j]]
			fresh[h] = v
			if hits == nil {
				hits = map[string][]float32{}
			}
			hits[h] = v
		}
		if err := c.cache.PutEmbeddings(ctx, model, fresh); err != nil {
			return nil, fmt.Errorf("writing embedding cache: %w", err)
		}
	}

	out := make([][]float32, len(texts))
	for i, h := range hashes {
		out[i] = hits[h]
	}
	return out, nil
}
