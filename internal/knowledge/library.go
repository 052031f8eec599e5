package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/logging"
)

// Library holds one index per specialist domain.
type Library struct {
	mu       sync.RWMutex
	indexes  map[domain.Domain]*Index
	embedder Embedder
	splitter *Splitter
	topK     int
	log      *logging.Logger
}

// NewLibrary creates an empty library.
func NewLibrary(embedder Embedder, splitter *Splitter, topK int, log *logging.Logger) *Library {
	if splitter == nil {
		splitter = NewSplitter()
	}
	if topK <= 0 {
		topK = 3
	}
	return &Library{
		indexes:  make(map[domain.Domain]*Index),
		embedder: embedder,
		splitter: splitter,
		topK:     topK,
		log:      log.Sub("knowledge"),
	}
}

// NewLibraryFromConfig wires the splitter and top-k from configuration.
func NewLibraryFromConfig(embedder Embedder, cfg config.KnowledgeConfig, log *logging.Logger) *Library {
	splitter := NewSplitter(WithChunkSize(cfg.ChunkSize), WithChunkOverlap(cfg.ChunkOverlap))
	return NewLibrary(embedder, splitter, cfg.TopK, log)
}

// TopK returns the default number of passages per query.
func (l *Library) TopK() int { return l.topK }

// Build indexes text for d, replacing any previous index.
func (l *Library) Build(ctx context.Context, d domain.Domain, text string) (*Index, error) {
	ix, err := NewIndex(ctx, d.Slug(), text, l.embedder, l.splitter)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.indexes[d] = ix
	l.mu.Unlock()
	l.log.Info().Str("domain", d.Slug()).Int("chunks", ix.Len()).Msg("built knowledge index")
	return ix, nil
}

// BuildFile indexes the document at path for d.
func (l *Library) BuildFile(ctx context.Context, d domain.Domain, path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s document: %w", d.Slug(), err)
	}
	return l.Build(ctx, d, string(data))
}

// BuildAll indexes the configured document of every specialist domain under
// dataDir. Missing documents are logged and skipped; the retrieval tool
// reports them per call.
func (l *Library) BuildAll(ctx context.Context, dataDir string, cfg config.KnowledgeConfig) error {
	var errs []error
	for _, d := range domain.Specialists {
		name := cfg.Document(d.Slug())
		if name == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, name)
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			l.log.Warn().Str("domain", d.Slug()).Str("path", path).Msg("knowledge document missing, skipping")
			continue
		}
		if _, err := l.BuildFile(ctx, d, path); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Index returns the index for d.
func (l *Library) Index(d domain.Domain) (*Index, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ix, ok := l.indexes[d]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoIndex, d.Slug())
	}
	return ix, nil
}

// Retrieve returns the top-k passages for query in d, joined by a blank line.
func (l *Library) Retrieve(ctx context.Context, d domain.Domain, query string) (string, error) {
	ix, err := l.Index(d)
	if err != nil {
		return "", err
	}
	return ix.Passages(ctx, query, l.topK)
}

// Domains lists the domains with a built index.
func (l *Library) Domains() []domain.Domain {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Domain, 0, len(l.indexes))
	for _, d := range domain.Specialists {
		if _, ok := l.indexes[d]; ok {
			out = append(out, d)
		}
	}
	return out
}
