package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/hotline/internal/domain"
)

const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

// SQLiteCheckpointStore implements domain.CheckpointStore backed by SQLite.
type SQLiteCheckpointStore struct {
	db *DB
}

// NewSQLiteCheckpointStore creates a checkpoint store using the given database.
func NewSQLiteCheckpointStore(db *DB) *SQLiteCheckpointStore {
	return &SQLiteCheckpointStore{db: db}
}

// Load returns the committed checkpoint of a thread.
func (s *SQLiteCheckpointStore) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	var (
		cp                   domain.Checkpoint
		messages, extra      string
		createdAt, updatedAt string
	)
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT thread_id, domain, version, messages, extra_state, created_at, updated_at
		 FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&cp.ThreadID, &cp.Domain, &cp.Version, &messages, &extra, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", threadID, err)
	}
	if err := decodeCheckpointBody(&cp, messages, extra); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", threadID, err)
	}
	cp.CreatedAt = parseTime(createdAt)
	cp.UpdatedAt = parseTime(updatedAt)
	return &cp, nil
}

// Save commits cp if the stored version is exactly cp.Version-1.
func (s *SQLiteCheckpointStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	messages, extra, err := encodeCheckpointBody(cp)
	if err != nil {
		return err
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint save: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM checkpoints WHERE thread_id = ?`, cp.ThreadID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		stored = 0
	case err != nil:
		return fmt.Errorf("reading checkpoint version: %w", err)
	}
	if stored != cp.Version-1 {
		return fmt.Errorf("%w: thread %s stored %d, saving %d", domain.ErrVersionConflict, cp.ThreadID, stored, cp.Version)
	}

	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	if stored == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO checkpoints (thread_id, domain, version, messages, extra_state, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			cp.ThreadID, string(cp.Domain), cp.Version, messages, extra,
			formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt),
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE checkpoints SET version = ?, messages = ?, extra_state = ?, updated_at = ?
			 WHERE thread_id = ? AND version = ?`,
			cp.Version, messages, extra, formatTime(cp.UpdatedAt), cp.ThreadID, stored,
		)
	}
	if err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", cp.ThreadID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

// Delete copies the checkpoint into checkpoint_archive and removes it.
func (s *SQLiteCheckpointStore) Delete(ctx context.Context, threadID string) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoint_archive (thread_id, domain, version, messages, extra_state, created_at, updated_at, deleted_at)
		 SELECT thread_id, domain, version, messages, extra_state, created_at, updated_at, ?
		 FROM checkpoints WHERE thread_id = ?`,
		formatTime(time.Now()), threadID,
	)
	if err != nil {
		return fmt.Errorf("archiving checkpoint %s: %w", threadID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCheckpointNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", threadID, err)
	}
	return tx.Commit()
}

// Archived returns the archived snapshots of a thread, oldest first.
func (s *SQLiteCheckpointStore) Archived(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT thread_id, domain, version, messages, extra_state, created_at, updated_at
		 FROM checkpoint_archive WHERE thread_id = ? ORDER BY id`, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	defer rows.Close()

	var out []domain.Checkpoint
	for rows.Next() {
		var (
			cp                   domain.Checkpoint
			messages, extra      string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&cp.ThreadID, &cp.Domain, &cp.Version, &messages, &extra, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := decodeCheckpointBody(&cp, messages, extra); err != nil {
			return nil, err
		}
		cp.CreatedAt = parseTime(createdAt)
		cp.UpdatedAt = parseTime(updatedAt)
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Threads lists threads with a live checkpoint, optionally restricted to
// one domain.
func (s *SQLiteCheckpointStore) Threads(ctx context.Context, d domain.Domain) ([]domain.Thread, error) {
	query := `SELECT thread_id, domain, created_at FROM checkpoints`
	args := []any{}
	if d != "" {
		query += ` WHERE domain = ?`
		args = append(args, string(d))
	}
	rows, err := s.db.sql.QueryContext(ctx, query+` ORDER BY updated_at DESC, thread_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var out []domain.Thread
	for rows.Next() {
		var (
			id, createdAt string
			td            domain.Domain
		)
		if err := rows.Scan(&id, &td, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, domain.NewThread(id, td, parseTime(createdAt)))
	}
	return out, rows.Err()
}

func encodeCheckpointBody(cp *domain.Checkpoint) (string, string, error) {
	msgs := cp.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	m, err := json.Marshal(msgs)
	if err != nil {
		return "", "", fmt.Errorf("encoding messages: %w", err)
	}
	extra := cp.ExtraState
	if extra == nil {
		extra = map[string]any{}
	}
	e, err := json.Marshal(extra)
	if err != nil {
		return "", "", fmt.Errorf("encoding extra state: %w", err)
	}
	return string(m), string(e), nil
}

func decodeCheckpointBody(cp *domain.Checkpoint, messages, extra string) error {
	if err := json.Unmarshal([]byte(messages), &cp.Messages); err != nil {
		return err
	}
	cp.ExtraState = map[string]any{}
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &cp.ExtraState); err != nil {
			return err
		}
	}
	return nil
}
