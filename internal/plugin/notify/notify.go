// Package notify is a plugin that turns case lifecycle events into user
// notifications.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/soyeahso/hotline/internal/plugin"
)

// Sink stores notifications.
type Sink interface {
	Add(ctx context.Context, n domain.Notification) (*domain.Notification, error)
}

// Plugin writes a notification when a case is submitted or changes status.
type Plugin struct {
	sink  Sink
	cases domain.CaseStore
	hooks *hooks.Manager
	log   *logging.Logger
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates the plugin over a notification sink.
func New(sink Sink) *Plugin {
	return &Plugin{sink: sink}
}

func (p *Plugin) ID() string      { return "notify" }
func (p *Plugin) Name() string    { return "Case notifications" }
func (p *Plugin) Version() string { return "1.0.0" }

// Init registers the case event handlers.
func (p *Plugin) Init(_ context.Context, api plugin.API) error {
	if p.sink == nil {
		return fmt.Errorf("notify: no notification store")
	}
	p.hooks = api.Hooks
	p.cases = api.Cases
	p.log = api.Log
	p.hooks.On(hooks.EventCaseSubmitted, p.ID(), p.onSubmitted)
	p.hooks.On(hooks.EventCaseStatusChanged, p.ID(), p.onStatusChanged)
	return nil
}

// Close unregisters the handlers.
func (p *Plugin) Close() error {
	if p.hooks != nil {
		p.hooks.Off(hooks.EventCaseSubmitted, p.ID())
		p.hooks.Off(hooks.EventCaseStatusChanged, p.ID())
	}
	return nil
}

func (p *Plugin) onSubmitted(ctx context.Context, ev hooks.Payload) error {
	caseID, d, userID := caseRef(ev)
	if caseID == "" || userID == "" {
		return fmt.Errorf("case_submitted without caseId or userId")
	}
	_, err := p.sink.Add(ctx, domain.Notification{
		UserID: userID,
		CaseID: caseID,
		Domain: d,
		Kind:   domain.NotificationCaseSubmitted,
		Title:  fmt.Sprintf("%s case submitted", title(d)),
		Body:   fmt.Sprintf("Your %s emergency case %s has been submitted and is awaiting assignment.", d.Slug(), caseID),
	})
	return err
}

func (p *Plugin) onStatusChanged(ctx context.Context, ev hooks.Payload) error {
	caseID, d, userID := caseRef(ev)
	status, _ := ev.Data["status"].(string)
	if caseID == "" || status == "" {
		return fmt.Errorf("case_status_changed without caseId or status")
	}
	if userID == "" {
		// Status changes made by operators carry no user; look it up.
		if p.cases == nil {
			return fmt.Errorf("case %s: no user to notify", caseID)
		}
		c, err := p.cases.Get(ctx, caseID, d)
		if err != nil {
			return fmt.Errorf("loading case %s: %w", caseID, err)
		}
		userID = c.UserID
	}

	n := domain.Notification{
		UserID: userID,
		CaseID: caseID,
		Domain: d,
		Kind:   domain.NotificationStatusUpdate,
		Title:  fmt.Sprintf("%s case %s", title(d), statusText(domain.CaseStatus(status))),
		Body:   fmt.Sprintf("Your %s emergency case %s is now %s.", d.Slug(), caseID, statusText(domain.CaseStatus(status))),
	}
	if domain.CaseStatus(status) == domain.StatusRequestedForResolution {
		n.Kind = domain.NotificationResolutionRequest
		n.Body += " Approve the request if the emergency has been handled."
	}
	stored, err := p.sink.Add(ctx, n)
	if err != nil {
		return err
	}
	p.log.Debug().Str("caseId", caseID).Str("notification", stored.ID).Str("kind", string(stored.Kind)).Msg("status notification stored")
	return nil
}

func caseRef(ev hooks.Payload) (caseID string, d domain.Domain, userID string) {
	caseID, _ = ev.Data["caseId"].(string)
	userID, _ = ev.Data["userId"].(string)
	if s, ok := ev.Data["domain"].(string); ok {
		if parsed, err := domain.ParseDomain(s); err == nil {
			d = parsed
		}
	}
	return caseID, d, userID
}

func title(d domain.Domain) string {
	if d == "" {
		return "Emergency"
	}
	return string(d)
}

func statusText(s domain.CaseStatus) string {
	switch s {
	case domain.StatusNotAssigned:
		return "not assigned"
	case domain.StatusInProgress:
		return "in progress"
	case domain.StatusRequestedForResolution:
		return "awaiting your confirmation"
	case domain.StatusResolved:
		return "resolved"
	}
	return strings.ToLower(string(s))
}
