package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/hotline/internal/domain"
)

const notificationColumns = `id, user_id, case_id, domain, kind, title, body, read, approved, created_at`

// NotificationStore keeps per-user case notifications.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a notification store using the given database.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Add records a notification and returns it with id and timestamp filled in.
func (s *NotificationStore) Add(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Kind == "" {
		n.Kind = domain.NotificationStatusUpdate
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.CaseID, string(n.Domain), string(n.Kind), n.Title, n.Body, n.Read,
		approvalValue(n.Approved), formatTime(n.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting notification: %w", err)
	}
	return &n, nil
}

// Get returns one notification or domain.ErrNotificationNotFound.
func (s *NotificationStore) Get(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := scanNotification(s.db.sql.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotificationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading notification %s: %w", id, err)
	}
	return n, nil
}

// List returns a user's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	return s.query(ctx, query+` ORDER BY created_at DESC, rowid DESC`, userID)
}

// Pending returns the resolution requests a user has not answered yet,
// newest first.
func (s *NotificationStore) Pending(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = ? AND kind = ? AND approved IS NULL
		 ORDER BY created_at DESC, rowid DESC`,
		userID, string(domain.NotificationResolutionRequest))
}

// UnreadCount returns how many of a user's notifications are unread.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}

// MarkRead flags a notification as read. It reports whether the id existed.
func (s *NotificationStore) MarkRead(ctx context.Context, id string) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("marking notification read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetApproval records the user's answer to a resolution request and marks
// it read. Only an unanswered request is updated; it reports whether one was.
func (s *NotificationStore) SetApproval(ctx context.Context, id string, approved bool) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE notifications SET approved = ?, read = 1
		 WHERE id = ? AND kind = ? AND approved IS NULL`,
		approvalValue(&approved), id, string(domain.NotificationResolutionRequest))
	if err != nil {
		return false, fmt.Errorf("recording approval: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *NotificationStore) query(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func scanNotification(r rowScanner) (*domain.Notification, error) {
	var (
		n         domain.Notification
		approved  sql.NullBool
		createdAt string
	)
	if err := r.Scan(&n.ID, &n.UserID, &n.CaseID, &n.Domain, &n.Kind, &n.Title, &n.Body, &n.Read, &approved, &createdAt); err != nil {
		return nil, err
	}
	if approved.Valid {
		v := approved.Bool
		n.Approved = &v
	}
	n.CreatedAt = parseTime(createdAt)
	return &n, nil
}

func approvalValue(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
