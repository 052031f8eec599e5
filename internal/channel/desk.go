package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/logging"
)

// CommandPrefix starts every operator command in a room.
const CommandPrefix = "!"

// maxListed bounds the cases listed in one reply.
const maxListed = 5

// Command is an operator message addressed to the dispatch desk.
type Command struct {
	ChannelID string
	From      string
	Room      string
	// Privileged is set when the sender may change case status.
	Privileged bool
	// Text is the command without its prefix.
	Text string
}

// CommandHandler answers a command. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, cmd Command) string

// Desk runs operator commands against the case store.
type Desk struct {
	cases domain.CaseStore
	hooks *hooks.Manager
	log   *logging.Logger
}

// NewDesk creates a desk. hm may be nil, in which case status changes are
// not announced.
func NewDesk(cases domain.CaseStore, hm *hooks.Manager, log *logging.Logger) *Desk {
	return &Desk{cases: cases, hooks: hm, log: log.Sub("desk")}
}

const deskHelp = "commands: !case <domain> <id> | !cases <domain> [status] | !status <domain> <id> <status>"

// Handle is a CommandHandler.
func (d *Desk) Handle(ctx context.Context, cmd Command) string {
	args := strings.Fields(cmd.Text)
	if len(args) == 0 {
		return ""
	}
	switch strings.ToLower(args[0]) {
	case "help":
		return deskHelp
	case "case":
		return d.show(ctx, args[1:])
	case "cases":
		return d.list(ctx, args[1:])
	case "status":
		if !cmd.Privileged {
			return cmd.From + ": only channel operators can change a case status"
		}
		return d.setStatus(ctx, cmd, args[1:])
	default:
		return fmt.Sprintf("unknown command %q; %s", args[0], deskHelp)
	}
}

func (d *Desk) show(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "usage: !case <domain> <id>"
	}
	dom, err := caseDomain(args[0])
	if err != nil {
		return err.Error()
	}
	c, err := d.cases.Get(ctx, args[1], dom)
	if err != nil {
		return d.failure(err, args[1])
	}
	return summary(c)
}

func (d *Desk) list(ctx context.Context, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return "usage: !cases <domain> [status]"
	}
	dom, err := caseDomain(args[0])
	if err != nil {
		return err.Error()
	}
	var status domain.CaseStatus
	if len(args) == 2 {
		if status, err = domain.ParseStatus(strings.ToUpper(args[1])); err != nil {
			return err.Error()
		}
	}
	cases, err := d.cases.List(ctx, dom, status)
	if err != nil {
		return d.failure(err, "")
	}
	if len(cases) == 0 {
		return fmt.Sprintf("no %s cases", dom.Slug())
	}
	lines := make([]string, 0, maxListed+1)
	for i := range cases {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("... and %d more", len(cases)-maxListed))
			break
		}
		lines = append(lines, summary(&cases[i]))
	}
	return strings.Join(lines, "\n")
}

func (d *Desk) setStatus(ctx context.Context, cmd Command, args []string) string {
	if len(args) != 3 {
		return "usage: !status <domain> <id> <status>"
	}
	dom, err := caseDomain(args[0])
	if err != nil {
		return err.Error()
	}
	status, err := domain.ParseStatus(strings.ToUpper(args[2]))
	if err != nil {
		return err.Error()
	}
	id := args[1]
	if err := d.cases.SetStatus(ctx, id, dom, status); err != nil {
		return d.failure(err, id)
	}
	c, err := d.cases.Get(ctx, id, dom)
	if err != nil {
		return d.failure(err, id)
	}

	d.log.Info().
		Str("caseId", id).
		Str("status", string(status)).
		Str("operator", cmd.From).
		Str("channel", cmd.ChannelID).
		Msg("case status changed")
	if d.hooks == nil {
		return summary(c)
	}
	// The announcement of the event is the reply.
	d.hooks.Emit(ctx, hooks.EventCaseStatusChanged, map[string]any{
		"caseId": c.ID,
		"domain": string(dom),
		"userId": c.UserID,
		"status": string(status),
		"by":     cmd.From,
	})
	return ""
}

func (d *Desk) failure(err error, id string) string {
	switch {
	case errors.Is(err, domain.ErrCaseNotFound):
		return fmt.Sprintf("case %s not found", id)
	case errors.Is(err, domain.ErrInvalidTransition):
		return fmt.Sprintf("case %s cannot move back to an earlier status", id)
	}
	d.log.Error().Err(err).Str("caseId", id).Msg("desk command failed")
	return "the case store is unavailable, try again"
}

func caseDomain(s string) (domain.Domain, error) {
	d, err := domain.ParseDomain(s)
	if err != nil {
		return "", err
	}
	if !d.IsSpecialist() {
		return "", fmt.Errorf("%s does not file cases", d.Slug())
	}
	return d, nil
}

func summary(c *domain.Case) string {
	return fmt.Sprintf("[%s] %s %s (user %s, reported %s)",
		c.Domain.Slug(), c.ID, c.Status, c.UserID, c.CreatedAt.UTC().Format("2006-01-02 15:04Z"))
}
