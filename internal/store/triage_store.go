package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/hotline/internal/domain"
)

// TriageReportStore keeps the classifications made by the triage router.
type TriageReportStore struct {
	db *DB
}

// NewTriageReportStore creates a triage report store using the given database.
func NewTriageReportStore(db *DB) *TriageReportStore {
	return &TriageReportStore{db: db}
}

// Add records a classification.
func (s *TriageReportStore) Add(ctx context.Context, r domain.TriageReport) (*domain.TriageReport, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO triage_reports (id, user_id, emergency_type, user_query, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.UserID, string(r.EmergencyType), r.UserQuery, formatTime(r.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting triage report: %w", err)
	}
	return &r, nil
}

// List returns a user's triage reports, oldest first.
func (s *TriageReportStore) List(ctx context.Context, userID string) ([]domain.TriageReport, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, user_id, emergency_type, user_query, created_at
		 FROM triage_reports WHERE user_id = ? ORDER BY created_at, rowid`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing triage reports: %w", err)
	}
	defer rows.Close()

	var out []domain.TriageReport
	for rows.Next() {
		var (
			r         domain.TriageReport
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.EmergencyType, &r.UserQuery, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
