package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/spf13/cobra"
)

func newCaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Inspect and update filed emergency cases",
	}

	cmd.AddCommand(newCaseGetCmd())
	cmd.AddCommand(newCaseStatusCmd())
	cmd.AddCommand(newCaseListCmd())
	return cmd
}

// parseCaseDomain accepts only the domains that file cases.
func parseCaseDomain(s string) (domain.Domain, error) {
	d, err := domain.ParseDomain(s)
	if err != nil {
		return "", err
	}
	if !d.IsSpecialist() {
		return "", fmt.Errorf("%s does not file cases", d.Slug())
	}
	return d, nil
}

func newCaseGetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <domain> <id>",
		Short: "Show one case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseCaseDomain(args[0])
			if err != nil {
				return err
			}
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			c, err := a.cases.Get(cmd.Context(), args[1], d)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			printCase(cmd.OutOrStdout(), c)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the case as JSON")
	return cmd
}

func newCaseStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <domain> <id> <status>",
		Short: "Move a case forward (NOT_ASSIGNED, IN_PROGRESS, REQUESTED_FOR_RESOLUTION, RESOLVED)",
		Long: "Moves a case forward in its lifecycle and notifies the reporting user.\n" +
			"Moving a case back to an earlier status is rejected.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseCaseDomain(args[0])
			if err != nil {
				return err
			}
			status, err := domain.ParseStatus(strings.ToUpper(args[2]))
			if err != nil {
				return err
			}
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, id := cmd.Context(), args[1]
			if err := a.cases.SetStatus(ctx, id, d, status); err != nil {
				return err
			}
			c, err := a.cases.Get(ctx, id, d)
			if err != nil {
				return err
			}
			a.hooks.Emit(ctx, hooks.EventCaseStatusChanged, map[string]any{
				"caseId": c.ID,
				"domain": string(d),
				"userId": c.UserID,
				"status": string(status),
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Case %s is now %s\n", c.ID, c.Status)
			return nil
		},
	}
}

func newCaseListCmd() *cobra.Command {
	var (
		status string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list <domain>",
		Short: "List a domain's cases, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseCaseDomain(args[0])
			if err != nil {
				return err
			}
			var st domain.CaseStatus
			if status != "" {
				if st, err = domain.ParseStatus(strings.ToUpper(status)); err != nil {
					return err
				}
			}
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			cases, err := a.cases.List(cmd.Context(), d, st)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, cases)
			}
			if len(cases) == 0 {
				fmt.Fprintln(out, "No cases.")
				return nil
			}
			for _, c := range cases {
				fmt.Fprintf(out, "  %-36s %-26s %-16s %s\n",
					c.ID, c.Status, c.UserID, c.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only cases in this status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cases as JSON")
	return cmd
}

func printCase(w io.Writer, c *domain.Case) {
	fmt.Fprintf(w, "Case:     %s\n", c.ID)
	fmt.Fprintf(w, "Domain:   %s\n", c.Domain.Slug())
	fmt.Fprintf(w, "User:     %s\n", c.UserID)
	fmt.Fprintf(w, "Status:   %s\n", c.Status)
	fmt.Fprintf(w, "Reported: %s\n", c.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if len(c.Fields) == 0 {
		return
	}
	fmt.Fprintln(w, "Fields:")
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := c.Fields[k]
		if v == nil {
			v = "(unknown)"
		}
		fmt.Fprintf(w, "  %s: %v\n", k, v)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
