package channel

import (
	"context"
	"fmt"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
)

// ForwardCaseEvents announces case submissions and status changes on every
// channel in reg.
func ForwardCaseEvents(hm *hooks.Manager, reg *Registry) {
	announce := func(ctx context.Context, p hooks.Payload) error {
		text := formatEvent(p)
		if text == "" {
			return nil
		}
		return reg.Announce(ctx, text)
	}
	hm.On(hooks.EventCaseSubmitted, "channels", announce)
	hm.On(hooks.EventCaseStatusChanged, "channels", announce)
}

// formatEvent renders a case event as one line, empty for other events.
func formatEvent(p hooks.Payload) string {
	str := func(key string) string {
		s, _ := p.Data[key].(string)
		return s
	}
	caseID, dom := str("caseId"), str("domain")
	if caseID == "" {
		return ""
	}
	prefix := "[case]"
	if dom != "" {
		prefix = fmt.Sprintf("[%s]", domain.Domain(dom).Slug())
	}

	switch p.Event {
	case hooks.EventCaseSubmitted:
		return fmt.Sprintf("%s new case %s from user %s", prefix, caseID, str("userId"))
	case hooks.EventCaseStatusChanged:
		text := fmt.Sprintf("%s case %s is now %s", prefix, caseID, str("status"))
		if by := str("by"); by != "" {
			text += " (set by " + by + ")"
		}
		return text
	}
	return ""
}
