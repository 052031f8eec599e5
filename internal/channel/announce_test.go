package channel

import (
	"context"
	"testing"

	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/stretchr/testify/assert"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		p    hooks.Payload
		want string
	}{
		{
			name: "submitted",
			p: hooks.Payload{Event: hooks.EventCaseSubmitted, Data: map[string]any{
				"caseId": "c1", "domain": "Medical", "userId": "u1", "threadId": "medical_u1",
			}},
			want: "[medical] new case c1 from user u1",
		},
		{
			name: "status changed from the desk",
			p: hooks.Payload{Event: hooks.EventCaseStatusChanged, Data: map[string]any{
				"caseId": "c2", "domain": "Fire", "userId": "u2", "status": "RESOLVED", "by": "alice",
			}},
			want: "[fire] case c2 is now RESOLVED (set by alice)",
		},
		{
			name: "status changed without operator",
			p: hooks.Payload{Event: hooks.EventCaseStatusChanged, Data: map[string]any{
				"caseId": "c3", "status": "IN_PROGRESS",
			}},
			want: "[case] case c3 is now IN_PROGRESS",
		},
		{
			name: "missing case id",
			p:    hooks.Payload{Event: hooks.EventCaseSubmitted, Data: map[string]any{"domain": "Fire"}},
		},
		{
			name: "other event",
			p:    hooks.Payload{Event: hooks.EventGatewayStart, Data: map[string]any{"caseId": "c4"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEvent(tt.p))
		})
	}
}

func TestForwardCaseEvents(t *testing.T) {
	hm := hooks.NewManager(testLogger())
	reg := NewRegistry(testLogger())
	ch := &mockChannel{id: "irc"}
	reg.Register(ch)
	ForwardCaseEvents(hm, reg)

	ctx := context.Background()
	hm.Emit(ctx, hooks.EventCaseSubmitted, map[string]any{"caseId": "c1", "domain": "Police", "userId": "u9"})
	hm.Emit(ctx, hooks.EventCaseStatusChanged, map[string]any{"caseId": "c1", "domain": "Police", "status": "IN_PROGRESS"})
	hm.Emit(ctx, hooks.EventCaseSubmitted, map[string]any{"domain": "Police"})

	assert.Equal(t, []string{
		"[police] new case c1 from user u9",
		"[police] case c1 is now IN_PROGRESS",
	}, ch.messages())
}
