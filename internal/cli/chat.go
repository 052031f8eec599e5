package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/routing"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		userID     string
		message    string
		caseID     string
		caseDomain string
	)

	cmd := &cobra.Command{
		Use:   "chat <domain>",
		Short: "Talk to a domain's conversation engine",
		Long: "Start an interactive conversation with a domain (triage, medical, police,\n" +
			"electricity, fire or followup). Triage hands the conversation to the\n" +
			"specialist once the emergency type is known. With --message a single turn\n" +
			"is run and its reply printed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDomain(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, paths.Database, log, appOptions{
				Engines:   true,
				Knowledge: d.IsSpecialist() || d == domain.DomainTriage,
			})
			if err != nil {
				return err
			}
			defer a.close()
			if _, err := a.requireService(); err != nil {
				return err
			}

			s := &chatSession{app: a, domain: d, userID: userID}
			if d == domain.DomainFollowup {
				if caseID == "" || caseDomain == "" {
					return fmt.Errorf("followup needs --case and --case-domain")
				}
				cd, err := domain.ParseDomain(caseDomain)
				if err != nil {
					return err
				}
				if !cd.IsSpecialist() {
					return fmt.Errorf("%s cases do not exist", cd)
				}
				s.caseID, s.caseDomain = caseID, cd
			}

			out := cmd.OutOrStdout()
			if message != "" {
				reply, err := s.send(cmd.Context(), message)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
				return nil
			}
			return s.repl(cmd.Context(), cmd.InOrStdin(), out)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id the conversation belongs to (required)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	cmd.Flags().StringVar(&caseID, "case", "", "case id (followup only)")
	cmd.Flags().StringVar(&caseDomain, "case-domain", "", "domain of the case (followup only)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// chatSession routes each utterance to the right engine. A triage session
// switches to the specialist after classification.
type chatSession struct {
	app    *app
	domain domain.Domain
	userID string

	caseID     string
	caseDomain domain.Domain

	handedOff bool
}

func (s *chatSession) send(ctx context.Context, msg string) (string, error) {
	switch {
	case s.domain == domain.DomainTriage && s.handedOff:
		res, err := s.app.router.Handoff(ctx, s.userID, msg)
		if err != nil {
			return "", err
		}
		return res.Reply, nil

	case s.domain == domain.DomainTriage:
		res, err := s.app.router.Route(ctx, s.userID, msg)
		if err != nil {
			return "", err
		}
		if !res.Classified {
			return res.Reply, nil
		}
		s.handedOff = true
		return fmt.Sprintf("%s\n[%s emergency: continuing with the %s line]",
			res.Reply, res.EmergencyType.Slug(), res.EmergencyType.Slug()), nil

	case s.domain == domain.DomainFollowup:
		res, err := s.app.service.Followup(ctx, agent.FollowupRequest{
			UserID:  s.userID,
			CaseID:  s.caseID,
			Domain:  s.caseDomain,
			Message: msg,
		})
		if err != nil {
			return "", err
		}
		return res.Reply, nil

	default:
		key, err := routing.ResolveThreadKey(s.domain, s.userID)
		if err != nil {
			return "", err
		}
		res, err := s.app.service.Chat(ctx, s.domain, key.UserID, msg)
		if err != nil {
			return "", err
		}
		return res.Reply, nil
	}
}

// repl reads one utterance per line until EOF or "/quit". A failed turn is
// reported and the loop continues; the thread is unchanged by it.
func (s *chatSession) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "hotline %s line, user %s. Type /quit to leave.\n", s.domain.Slug(), s.userID)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply, err := s.send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if agent.IsRecoverable(err) {
				fmt.Fprintf(out, "! The line is busy, please repeat your message. (%v)\n", err)
			} else {
				fmt.Fprintf(out, "! %v\n", err)
			}
			continue
		}
		fmt.Fprintln(out, reply)
	}
}
