package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/hotline/internal/domain"
)

// SQLiteCaseStore implements domain.CaseStore backed by SQLite.
type SQLiteCaseStore struct {
	db *DB
}

// NewSQLiteCaseStore creates a case store using the given database.
func NewSQLiteCaseStore(db *DB) *SQLiteCaseStore {
	return &SQLiteCaseStore{db: db}
}

// Create inserts a case. A repeated idempotency key returns the existing id.
func (s *SQLiteCaseStore) Create(ctx context.Context, in domain.CaseInput) (string, error) {
	fields, err := json.Marshal(nonNilDraft(in.Draft))
	if err != nil {
		return "", fmt.Errorf("encoding case fields: %w", err)
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin case create: %w", err)
	}
	defer tx.Rollback()

	var key sql.NullString
	if in.IdempotencyKey != "" {
		key = sql.NullString{String: in.IdempotencyKey, Valid: true}
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT id FROM cases WHERE idempotency_key = ?`, in.IdempotencyKey).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("checking idempotency key: %w", err)
		}
	}

	id := uuid.New().String()
	now := formatTime(time.Now())
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cases (id, domain, user_id, fields, status, idempotency_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(in.Domain), in.UserID, string(fields), string(domain.StatusNotAssigned), key, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting case: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit case: %w", err)
	}
	s.db.log.Info().Str("case", id).Str("domain", string(in.Domain)).Msg("case created")
	return id, nil
}

// Get returns a case of the given domain.
func (s *SQLiteCaseStore) Get(ctx context.Context, id string, d domain.Domain) (*domain.Case, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, domain, user_id, fields, status, COALESCE(idempotency_key, ''), created_at, updated_at
		 FROM cases WHERE id = ? AND domain = ?`, id, string(d),
	)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrCaseNotFound, d, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading case %s: %w", id, err)
	}
	return c, nil
}

// SetStatus moves a case forward. Repeating the current status is a no-op.
func (s *SQLiteCaseStore) SetStatus(ctx context.Context, id string, d domain.Domain, status domain.CaseStatus) error {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return err
	}
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var current domain.CaseStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM cases WHERE id = ? AND domain = ?`, id, string(d)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", domain.ErrCaseNotFound, d, id)
	}
	if err != nil {
		return fmt.Errorf("reading case status: %w", err)
	}
	if current == status {
		return nil
	}
	if !domain.CanTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE cases SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("updating case status: %w", err)
	}
	return tx.Commit()
}

// List returns the cases of a domain, newest first. An empty status lists all.
func (s *SQLiteCaseStore) List(ctx context.Context, d domain.Domain, status domain.CaseStatus) ([]domain.Case, error) {
	query := `SELECT id, domain, user_id, fields, status, COALESCE(idempotency_key, ''), created_at, updated_at
		FROM cases WHERE domain = ?`
	args := []any{string(d)}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	var out []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(r rowScanner) (*domain.Case, error) {
	var (
		c                    domain.Case
		fields               string
		createdAt, updatedAt string
	)
	if err := r.Scan(&c.ID, &c.Domain, &c.UserID, &fields, &c.Status, &c.IdempotencyKey, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &c.Fields); err != nil {
		return nil, fmt.Errorf("decoding case fields: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func nonNilDraft(d domain.CaseDraft) domain.CaseDraft {
	if d == nil {
		return domain.CaseDraft{}
	}
	return d
}
