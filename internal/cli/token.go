package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/auth"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/rbac"
	"github.com/spf13/cobra"
)

var (
	tokenEmail string
	tokenRole  string
	tokenTTL   time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Subject email")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(rbac.RoleCustomer), "customer, seller or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Lifetime (defaults to JWT_EXPIRATION_HOURS)")
	_ = tokenCmd.MarkFlagRequired("email")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token signed with JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func runToken(cmd *cobra.Command, _ []string) error {
	role := rbac.Role(tokenRole)
	if !rbac.IsValidRole(role) {
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	cfg := config.Load()
	if role == rbac.RoleAdmin && !cfg.IsAdmin(tokenEmail) {
		return fmt.Errorf("%s is not in ADMIN_EMAILS", tokenEmail)
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.JWTExpiration
	}
	tok, err := auth.GenerateJWT(cfg.JWTSecret, uuid.New(), tokenEmail, role, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
