package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/soyeahso/hotline/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cases (
	id               TEXT PRIMARY KEY,
	domain           TEXT NOT NULL,
	user_id          TEXT NOT NULL DEFAULT '',
	fields           JSONB NOT NULL DEFAULT '{}',
	status           TEXT NOT NULL DEFAULT 'NOT_ASSIGNED',
	idempotency_key  TEXT UNIQUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_cases_domain_status ON cases (domain, status);
`

// PostgresCaseStore implements domain.CaseStore on PostgreSQL.
type PostgresCaseStore struct {
	db *sql.DB
}

// NewPostgresCaseStore connects with dsn and creates the cases table.
func NewPostgresCaseStore(ctx context.Context, dsn string) (*PostgresCaseStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cases table: %w", err)
	}
	return &PostgresCaseStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresCaseStore) Close() error {
	return s.db.Close()
}

func (s *PostgresCaseStore) Create(ctx context.Context, in domain.CaseInput) (string, error) {
	fields, err := json.Marshal(nonNilDraft(in.Draft))
	if err != nil {
		return "", fmt.Errorf("encoding case fields: %w", err)
	}
	var key sql.NullString
	if in.IdempotencyKey != "" {
		key = sql.NullString{String: in.IdempotencyKey, Valid: true}
	}

	var id string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO cases (id, domain, user_id, fields, status, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id`,
		uuid.New().String(), string(in.Domain), in.UserID, string(fields), string(domain.StatusNotAssigned), key,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) && key.Valid {
		err = s.db.QueryRowContext(ctx, `SELECT id FROM cases WHERE idempotency_key = $1`, key.String).Scan(&id)
	}
	if err != nil {
		return "", fmt.Errorf("inserting case: %w", err)
	}
	return id, nil
}

func (s *PostgresCaseStore) Get(ctx context.Context, id string, d domain.Domain) (*domain.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, domain, user_id, fields, status, COALESCE(idempotency_key, ''), created_at, updated_at
		 FROM cases WHERE id = $1 AND domain = $2`, id, string(d))
	c, err := scanPostgresCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrCaseNotFound, d, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading case %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresCaseStore) SetStatus(ctx context.Context, id string, d domain.Domain, status domain.CaseStatus) error {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var current domain.CaseStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM cases WHERE id = $1 AND domain = $2 FOR UPDATE`, id, string(d)).Scan(&current)
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
		`UPDATE cases SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now().UTC(), id); err != nil {
		return fmt.Errorf("updating case status: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresCaseStore) List(ctx context.Context, d domain.Domain, status domain.CaseStatus) ([]domain.Case, error) {
	query := `SELECT id, domain, user_id, fields, status, COALESCE(idempotency_key, ''), created_at, updated_at
		FROM cases WHERE domain = $1`
	args := []any{string(d)}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	var out []domain.Case
	for rows.Next() {
		c, err := scanPostgresCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanPostgresCase(r rowScanner) (*domain.Case, error) {
	var (
		c      domain.Case
		fields []byte
	)
	if err := r.Scan(&c.ID, &c.Domain, &c.UserID, &fields, &c.Status, &c.IdempotencyKey, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &c.Fields); err != nil {
		return nil, fmt.Errorf("decoding case fields: %w", err)
	}
	return &c, nil
}
