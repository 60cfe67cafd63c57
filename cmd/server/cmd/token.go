package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tixdesk/server/internal/auth"
	"github.com/tixdesk/server/internal/testauth"
)

func newTokenCommand(global *globalOptions) *cobra.Command {
	var (
		subject string
		role    string
		email   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		Long: `Mint a bearer token signed with the configured JWT secret.

The subject must be the id of an existing account: the server looks the
account up on every request and uses its stored role. Refused when
ENVIRONMENT=production.

Example:
  tixdesk token --subject 3f1c... --role admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			if _, ok := auth.ParseRole(role); !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := global.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.IsProduction() {
				return errors.New("refusing to mint tokens in production")
			}

			ta, err := testauth.NewTestAuthenticator(testauth.Config{
				JWTSecret: cfg.Auth.JWTSecret,
				Issuer:    cfg.Auth.JWTIssuer,
				Role:      role,
				Subject:   subject,
				Email:     email,
				TTL:       ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ta.Token())
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "user id to put in the token")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "role claim (admin or user)")
	cmd.Flags().StringVar(&email, "email", "", "email claim (optional)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
