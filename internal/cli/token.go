package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"learnpath-service/internal/auth"
	"learnpath-service/internal/config"
)

// NewTokenCmd issues an API token, mainly for local testing and bootstrap admins.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			r := auth.Role(role)
			if !r.Valid() {
				return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
			}
			signer, err := auth.NewSigner(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			if err != nil {
				return err
			}
			token, err := signer.Issue(auth.Identity{UserID: userID, Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleStudent), "admin, teacher or student")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
