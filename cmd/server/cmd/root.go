package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tixdesk/server/internal/config"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	global := &globalOptions{}

	root := &cobra.Command{
		Use:   "tixdesk",
		Short: "Tixdesk account server - signup, login and admin user management",
		Long: `Tixdesk account server exposes a small JSON API for user accounts.

The server supports:
- Signup and login with bcrypt-hashed passwords and JWT bearer tokens
- Admin-only role and skill updates and user listing
- Asynchronous signup events and welcome emails via a Postgres-backed job queue`,
		SilenceUsage: true,
		// Run the server when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), global, serveOptions{})
		},
	}

	root.PersistentFlags().StringVar(&global.configPath, "config", "", "config file path (optional, uses env vars by default)")
	root.PersistentFlags().StringVar(&global.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&global.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		newServeCommand(global),
		newMigrateCommand(global),
		newTokenCommand(global),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file (if any) and environment, then applies
// the logging flags on top.
func (o *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}
