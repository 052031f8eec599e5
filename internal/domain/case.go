package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCaseNotFound is returned when a case id is unknown for a domain.
	ErrCaseNotFound = errors.New("case not found")

	// ErrInvalidTransition is returned for a backward status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCaseNotOwned is returned when a user acts on another user's case.
	ErrCaseNotOwned = errors.New("case belongs to another user")

	// ErrNotificationNotFound is returned for an unknown notification id.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrNotApprovable is returned when answering a notification that is
	// not an open resolution request.
	ErrNotApprovable = errors.New("notification does not await approval")
)

// CaseStatus tracks a case through its linear lifecycle.
type CaseStatus string

const (
	StatusNotAssigned            CaseStatus = "NOT_ASSIGNED"
	StatusInProgress             CaseStatus = "IN_PROGRESS"
	StatusRequestedForResolution CaseStatus = "REQUESTED_FOR_RESOLUTION"
	StatusResolved               CaseStatus = "RESOLVED"
)

var statusOrder = map[CaseStatus]int{
	StatusNotAssigned:            0,
	StatusInProgress:             1,
	StatusRequestedForResolution: 2,
	StatusResolved:               3,
}

// ParseStatus validates a status name.
func ParseStatus(s string) (CaseStatus, error) {
	st := CaseStatus(s)
	if _, ok := statusOrder[st]; !ok {
		return "", fmt.Errorf("unknown case status %q", s)
	}
	return st, nil
}

// CanTransition reports whether a case may move from one status to another.
// Staying put is allowed; moving backwards is not.
func CanTransition(from, to CaseStatus) bool {
	f, ok1 := statusOrder[from]
	t, ok2 := statusOrder[to]
	return ok1 && ok2 && t >= f
}

// CaseDraft maps schema field names to extracted values. A nil value means
// the transcript held no evidence for the field.
type CaseDraft map[string]any

// Missing returns the names in required whose values are nil or blank.
func (d CaseDraft) Missing(required []string) []string {
	var out []string
	for _, name := range required {
		v, ok := d[name]
		if !ok || v == nil {
			out = append(out, name)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			out = append(out, name)
		}
	}
	return out
}

// Case is a submitted record as held by the case store.
type Case struct {
	ID             string     `json:"id"`
	Domain         Domain     `json:"domain"`
	UserID         string     `json:"userId"`
	Fields         CaseDraft  `json:"fields"`
	Status         CaseStatus `json:"status"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CaseInput is the payload of a create call.
type CaseInput struct {
	Domain         Domain
	UserID         string
	Draft          CaseDraft
	IdempotencyKey string
}

// CaseStore is the relational case-record store.
type CaseStore interface {
	// Create stores a case and returns its id. A repeated key returns the
	// id of the case first created with it.
	Create(ctx context.Context, in CaseInput) (string, error)

	// Get returns the case or ErrCaseNotFound.
	Get(ctx context.Context, id string, d Domain) (*Case, error)

	// SetStatus moves a case forward in its lifecycle.
	SetStatus(ctx context.Context, id string, d Domain, status CaseStatus) error

	// List returns a domain's cases, optionally filtered by status.
	List(ctx context.Context, d Domain, status CaseStatus) ([]Case, error)
}

// NotificationKind classifies a notification.
type NotificationKind string

const (
	NotificationCaseSubmitted NotificationKind = "case_submitted"
	NotificationStatusUpdate  NotificationKind = "status_update"
	// NotificationResolutionRequest asks the user to confirm that their case
	// was handled.
	NotificationResolutionRequest NotificationKind = "resolution_request"
)

// Notification is a message shown to a user about one of their cases.
type Notification struct {
	ID     string           `json:"id"`
	UserID string           `json:"userId"`
	CaseID string           `json:"caseId,omitempty"`
	Domain Domain           `json:"domain,omitempty"`
	Kind   NotificationKind `json:"type"`
	Title  string           `json:"title"`
	Body   string           `json:"body"`
	Read   bool             `json:"read"`
	// Approved is the user's answer to a resolution request, nil until
	// they give one.
	Approved  *bool     `json:"approved,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pending reports whether the notification is a resolution request the
// user has not answered.
func (n *Notification) Pending() bool {
	return n.Kind == NotificationResolutionRequest && n.Approved == nil
}

// TriageReport records a classification made by the triage router.
type TriageReport struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	EmergencyType Domain    `json:"emergencyType"`
	UserQuery     string    `json:"userQuery"`
	CreatedAt     time.Time `json:"createdAt"`
}
