package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// EmbeddingCache stores chunk vectors keyed by model and content hash.
type EmbeddingCache struct {
	db *DB
}

// NewEmbeddingCache creates an embedding cache using the given database.
func NewEmbeddingCache(db *DB) *EmbeddingCache {
	return &EmbeddingCache{db: db}
}

// GetEmbeddings returns the cached vectors among hashes.
func (c *EmbeddingCache) GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	const batch = 500
	for start := 0; start < len(hashes); start += batch {
		end := min(start+batch, len(hashes))
		part := hashes[start:end]

		args := make([]any, 0, len(part)+1)
		args = append(args, model)
		for _, h := range part {
			args = append(args, h)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")

		rows, err := c.db.sql.QueryContext(ctx,
			`SELECT hash, vector FROM embedding_cache WHERE model = ? AND hash IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("reading embedding cache: %w", err)
		}
		for rows.Next() {
			var (
				hash string
				blob []byte
			)
			if err := rows.Scan(&hash, &blob); err != nil {
				rows.Close()
				return nil, err
			}
			out[hash] = decodeVector(blob)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutEmbeddings stores vectors, replacing existing entries.
func (c *EmbeddingCache) PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := c.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin embedding cache write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (model, hash, vector, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for hash, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, model, hash, encodeVector(vec), now); err != nil {
			return fmt.Errorf("writing embedding %s: %w", hash, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of cached vectors for a model.
func (c *EmbeddingCache) Count(ctx context.Context, model string) (int, error) {
	var n int
	err := c.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache WHERE model = ?`, model).Scan(&n)
	return n, err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
