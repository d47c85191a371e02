package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/fuel-engine/api"
)

// newTokenCmd signs a bearer token with the server's secret so operators
// can call the mutating routes.
func newTokenCmd(st *cliState) *cobra.Command {
	var (
		subject, role string
		ttl           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API token with the configured JWT secret",
		Long: `Sign an HS256 bearer token with auth.jwt_secret (FUEL_JWT_SECRET).

The subject is recorded as the reviewer on approvals and verifications.
Export the output as FUEL_API_TOKEN for the remote commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := st.cfg.Auth.JWTSecret
			if secret == "" {
				return errors.New("no jwt secret configured (set FUEL_JWT_SECRET or auth.jwt_secret)")
			}
			token, err := api.NewAuthenticator(secret, ttl).IssueToken(subject, role)
			if err != nil {
				return err
			}
			st.logger.Debug("token issued",
				zap.String("subject", subject),
				zap.String("role", role),
				zap.Duration("ttl", ttl))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Operator ID the token is issued to")
	cmd.Flags().StringVar(&role, "role", "manager", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("subject")
	return cmd
}
