package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/hotline/internal/domain"
)

// RedisCheckpointStore implements domain.CheckpointStore on Redis. A
// checkpoint is one JSON value; saves use WATCH/MULTI so a concurrent
// writer aborts the transaction instead of being overwritten.
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCheckpointStore creates a store from a redis:// URL or host:port.
func NewRedisCheckpointStore(ctx context.Context, addr, prefix string) (*RedisCheckpointStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return NewRedisCheckpointStoreFromClient(client, prefix), nil
}

// NewRedisCheckpointStoreFromClient wraps an existing client.
func NewRedisCheckpointStoreFromClient(client *redis.Client, prefix string) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "hotline:checkpoint:"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix}
}

// Close closes the client.
func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}

func (s *RedisCheckpointStore) key(threadID string) string        { return s.prefix + threadID }
func (s *RedisCheckpointStore) archiveKey(threadID string) string { return s.prefix + "archive:" + threadID }

func (s *RedisCheckpointStore) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	raw, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", threadID, err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", threadID, err)
	}
	if cp.ExtraState == nil {
		cp.ExtraState = map[string]any{}
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	key := s.key(cp.ThreadID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != cp.Version-1 {
			return fmt.Errorf("%w: thread %s stored %d, saving %d", domain.ErrVersionConflict, cp.ThreadID, stored, cp.Version)
		}

		now := time.Now().UTC()
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		cp.UpdatedAt = now
		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("encoding checkpoint: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: thread %s changed during save", domain.ErrVersionConflict, cp.ThreadID)
	}
	return err
}

func (s *RedisCheckpointStore) Delete(ctx context.Context, threadID string) error {
	key := s.key(threadID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrCheckpointNotFound
		}
		if err != nil {
			return err
		}
		entry, err := json.Marshal(map[string]any{
			"deletedAt":  time.Now().UTC(),
			"checkpoint": json.RawMessage(raw),
		})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.archiveKey(threadID), entry)
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: thread %s changed during delete", domain.ErrVersionConflict, threadID)
	}
	return err
}

// ArchivedCount returns how many snapshots of a thread were archived.
func (s *RedisCheckpointStore) ArchivedCount(ctx context.Context, threadID string) (int64, error) {
	return s.client.LLen(ctx, s.archiveKey(threadID)).Result()
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading checkpoint: %w", err)
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("decoding checkpoint version: %w", err)
	}
	return head.Version, nil
}
