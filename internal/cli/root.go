package cli

import (
	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths    config.Paths
	conf     config.Config
	confErr  error
	log      *logging.Logger
	closeLog = func() error { return nil }
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotline",
		Short: "Hotline: emergency reporting conversations",
		Long: "Hotline runs the triage and specialist conversations that turn an emergency report\n" +
			"into a filed case, and serves them over HTTP and WebSocket.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			// A broken config file is reported by the commands that need
			// it; the rest run on defaults.
			conf, confErr = config.Load(paths.Config)
			if confErr != nil {
				conf = config.Defaults()
			}

			level := logLevel
			if level == "" {
				level = conf.Logging.Level
			}
			if level == "" {
				level = "info"
			}
			log, closeLog, err = logging.Open(logging.Options{
				Level:        level,
				ConsoleStyle: conf.Logging.ConsoleStyle,
				File:         conf.Logging.File,
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeLog()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.hotline/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newThreadCmd())
	cmd.AddCommand(newCaseCmd())
	cmd.AddCommand(newNotificationsCmd())
	cmd.AddCommand(newDomainsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig returns the configuration loaded by the root command, or the
// error that loading it produced.
func loadConfig() (config.Config, error) {
	if confErr != nil {
		return config.Config{}, confErr
	}
	return conf, nil
}

// openStores opens the database and stores without any conversation engine.
func openStores(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(cmd.Context(), cfg, paths.Database, log, appOptions{})
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
