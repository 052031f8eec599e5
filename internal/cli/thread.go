package cli

import (
	"fmt"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/routing"
	"github.com/spf13/cobra"
)

func newThreadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Inspect or reset a user's conversation thread",
	}

	cmd.AddCommand(newThreadListCmd())
	cmd.AddCommand(newThreadHistoryCmd())
	cmd.AddCommand(newThreadResetCmd())
	return cmd
}

type threadFlags struct {
	userID string
	caseID string
}

func (f *threadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&f.caseID, "case", "", "case id (followup only)")
	_ = cmd.MarkFlagRequired("user")
}

// threadID resolves the thread a domain and user map to.
func (f *threadFlags) threadID(d domain.Domain) (string, error) {
	key, err := routing.ResolveThreadKey(d, f.userID)
	if err != nil {
		return "", err
	}
	if d != domain.DomainFollowup {
		return key.ID(), nil
	}
	if f.caseID == "" {
		return "", fmt.Errorf("followup threads need --case")
	}
	return domain.FollowupThreadID(f.caseID, key.UserID), nil
}

// threadEngine returns an engine over the checkpoint store. History and
// Reset never generate, so it has no client.
func threadEngine(a *app, d domain.Domain) *agent.Engine {
	return agent.NewEngine(agent.DomainConfig{Domain: d}, agent.Options{}, nil, a.checkpoints, a.hooks, a.log)
}

func newThreadListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [domain]",
		Short: "List live threads, most recently active first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d domain.Domain
			if len(args) == 1 {
				var err error
				if d, err = domain.ParseDomain(args[0]); err != nil {
					return err
				}
			}

			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			lister, ok := a.checkpoints.(domain.ThreadLister)
			if !ok {
				return fmt.Errorf("the %s checkpoint backend cannot list threads", backendName(a.cfg.Checkpoint.Backend))
			}
			threads, err := lister.Threads(cmd.Context(), d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, threads)
			}
			if len(threads) == 0 {
				fmt.Fprintln(out, "No threads.")
				return nil
			}
			for _, th := range threads {
				fmt.Fprintf(out, "  %-48s %-12s %-16s %s\n",
					th.ID, th.Domain.Slug(), th.UserID, th.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the threads as JSON")
	return cmd
}

func newThreadHistoryCmd() *cobra.Command {
	var flags threadFlags

	cmd := &cobra.Command{
		Use:   "history <domain>",
		Short: "Print the messages of a thread, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDomain(args[0])
			if err != nil {
				return err
			}
			threadID, err := flags.threadID(d)
			if err != nil {
				return err
			}

			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			msgs, err := threadEngine(a, d).History(cmd.Context(), threadID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintf(out, "Thread %s is empty.\n", threadID)
				return nil
			}
			fmt.Fprintf(out, "Thread %s (%d messages)\n", threadID, len(msgs))
			for _, m := range msgs {
				fmt.Fprintf(out, "  %-9s %s\n", m.Role+":", m.Content)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newThreadResetCmd() *cobra.Command {
	var flags threadFlags

	cmd := &cobra.Command{
		Use:   "reset <domain>",
		Short: "Archive and clear a thread so the next message starts over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDomain(args[0])
			if err != nil {
				return err
			}
			threadID, err := flags.threadID(d)
			if err != nil {
				return err
			}

			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := threadEngine(a, d).Reset(cmd.Context(), threadID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", threadID)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
