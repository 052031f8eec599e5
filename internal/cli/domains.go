package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/spf13/cobra"
)

func newDomainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List the conversation domains with their tools and case fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, d := range domain.AllDomains {
				dc, err := domainConfig(d)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-12s tools=%s\n", d.Slug(), strings.Join(dc.Tools.Names(), ","))
				if dc.Schema == nil {
					continue
				}
				fields := make([]string, 0, len(dc.Schema.Fields))
				for _, f := range dc.Schema.Fields {
					name := f.Name
					if f.Required {
						name += "*"
					}
					fields = append(fields, name)
				}
				fmt.Fprintf(out, "  %-12s fields=%s\n", "", strings.Join(fields, ","))
			}
			fmt.Fprintln(out, "\n  * required before a case can be submitted")
			return nil
		},
	}
}

// domainConfig describes a domain without any backends attached.
func domainConfig(d domain.Domain) (agent.DomainConfig, error) {
	switch d {
	case domain.DomainTriage:
		return agent.TriageConfig(), nil
	case domain.DomainFollowup:
		return agent.FollowupConfig(nil), nil
	default:
		return agent.SpecialistConfig(d, nil, nil, nil)
	}
}
