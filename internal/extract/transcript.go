package extract

import (
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
)

// Transcript renders the human and assistant turns of a log as
// "Human: ..." and "AI: ..." blocks separated by a blank line. Tool
// messages and empty assistant turns are omitted.
func Transcript(msgs []domain.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			parts = append(parts, "Human: "+m.Content)
		case domain.RoleAssistant:
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			parts = append(parts, "AI: "+m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// UserText concatenates every user utterance.
func UserText(msgs []domain.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != domain.RoleUser {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
