package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/llm"
	"github.com/soyeahso/hotline/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show hotline status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b := version.Current()
			fmt.Fprintf(out, "Hotline %s (commit %s)\n\n", b.Version, short(b.Commit))

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Database: %s\n", paths.Database)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults)")
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			if providers := registry.List(); len(providers) > 0 {
				fmt.Fprintf(out, "LLM:      %s (primary %s, model %s)\n",
					strings.Join(providers, ", "), cfg.LLM.Provider, cfg.LLM.Model)
			} else {
				fmt.Fprintln(out, "LLM:      (none configured)")
			}
			fmt.Fprintf(out, "Embedder: %s %s\n", cfg.Embedding.Provider, cfg.Embedding.Model)

			fmt.Fprintf(out, "Turns:    window=%d roundTrips=%d timeout=%s\n",
				cfg.Conversation.HistoryWindow, cfg.Conversation.MaxRoundTrips, cfg.Conversation.Timeout())
			fmt.Fprintf(out, "Stores:   checkpoints=%s cases=%s\n",
				backendName(cfg.Checkpoint.Backend), backendName(cfg.Cases.Backend))
			if cfg.Telemetry.Enabled {
				endpoint := cfg.Telemetry.Endpoint
				if endpoint == "" {
					endpoint = "stdout"
				}
				fmt.Fprintf(out, "Tracing:  %s\n", endpoint)
			}
			if irc := cfg.Channels.IRC; irc != nil {
				fmt.Fprintf(out, "IRC:      %s as %s in %s\n", irc.Server, irc.Nick, strings.Join(irc.Channels, ", "))
			}

			dataDir := paths.DataDir(cfg.Knowledge)
			for _, d := range domain.Specialists {
				name := cfg.Knowledge.Document(d.Slug())
				state := "ok"
				switch {
				case name == "":
					state = "not configured"
				case !fileExists(filepath.Join(dataDir, name)) && !fileExists(name):
					state = "missing"
				}
				fmt.Fprintf(out, "Docs:     %-12s %s (%s)\n", d.Slug(), name, state)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
