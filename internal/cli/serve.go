package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/hotline/internal/channel"
	"github.com/soyeahso/hotline/internal/channel/irc"
	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/gateway"
	"github.com/soyeahso/hotline/internal/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hotline gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, log)
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())

			a, err := openApp(ctx, cfg, paths.Database, log, appOptions{Engines: true, Knowledge: true})
			if err != nil {
				return err
			}
			defer a.close()

			for _, p := range a.plugins.Info() {
				log.Info().Str("plugin", p.ID).Str("version", p.Version).Msg("plugin active")
			}

			if cfg.Channels.IRC != nil {
				reg := channel.NewRegistry(log)
				reg.Register(irc.New(*cfg.Channels.IRC, log))
				reg.Route(channel.NewDesk(a.cases, a.hooks, log).Handle)
				channel.ForwardCaseEvents(a.hooks, reg)
				reg.StartAll(ctx)
				defer reg.StopAll(context.Background())
			}

			opts := []gateway.ServerOption{
				gateway.WithCases(a.cases),
				gateway.WithNotifications(a.notifications),
				gateway.WithApprovals(a.approvals),
				gateway.WithHooks(a.hooks),
			}
			if a.service != nil {
				opts = append(opts, gateway.WithService(a.service), gateway.WithRouter(a.router))
			} else {
				log.Warn().Msg("no LLM providers found, chat routes will be unavailable")
			}

			srv := gateway.New(cfg, log, opts...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
