package notify

import (
	"context"
	"fmt"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/logging"
)

// ApprovalStore reads and answers resolution requests.
type ApprovalStore interface {
	Get(ctx context.Context, id string) (*domain.Notification, error)
	SetApproval(ctx context.Context, id string, approved bool) (bool, error)
}

// Decision is the outcome of answering a resolution request.
type Decision struct {
	Notification *domain.Notification `json:"notification"`
	// Resolved is set when the approval moved the case to RESOLVED.
	Resolved bool   `json:"resolved"`
	Message  string `json:"message"`
}

// Approvals lets users answer the resolution requests sent to them.
type Approvals struct {
	store ApprovalStore
	cases domain.CaseStore
	hooks *hooks.Manager
	log   *logging.Logger
}

// NewApprovals creates the approval flow. hm may be nil.
func NewApprovals(store ApprovalStore, cases domain.CaseStore, hm *hooks.Manager, log *logging.Logger) *Approvals {
	return &Approvals{store: store, cases: cases, hooks: hm, log: log.Sub("approvals")}
}

// Decide records a user's answer to a resolution request. An approval
// resolves the case and emits case_status_changed. userID, when set, must
// own the notification. A request can be answered once.
func (a *Approvals) Decide(ctx context.Context, id, userID string, approved bool) (*Decision, error) {
	n, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && n.UserID != userID {
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrCaseNotOwned)
	}
	if !n.Pending() {
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotApprovable)
	}
	ok, err := a.store.SetApproval(ctx, id, approved)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Answered concurrently.
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotApprovable)
	}
	n.Approved = &approved
	n.Read = true

	d := &Decision{Notification: n}
	if !approved {
		d.Message = "Resolution request declined"
		a.log.Info().Str("notification", id).Str("caseId", n.CaseID).Msg("resolution declined")
		return d, nil
	}

	if n.CaseID == "" || a.cases == nil {
		d.Message = "Resolution request approved"
		return d, nil
	}
	if err := a.cases.SetStatus(ctx, n.CaseID, n.Domain, domain.StatusResolved); err != nil {
		a.log.Warn().Err(err).Str("caseId", n.CaseID).Msg("approved case could not be resolved")
		d.Message = "Resolution request approved but the case status could not be updated"
		return d, nil
	}
	d.Resolved = true
	d.Message = "Resolution request approved and the case is resolved"
	a.log.Info().Str("notification", id).Str("caseId", n.CaseID).Msg("resolution approved")

	if a.hooks != nil {
		a.hooks.Emit(ctx, hooks.EventCaseStatusChanged, map[string]any{
			"caseId": n.CaseID,
			"domain": string(n.Domain),
			"userId": n.UserID,
			"status": string(domain.StatusResolved),
			"by":     n.UserID,
		})
	}
	return d, nil
}
