package main

import (
	"time"

	"github.com/meetprep/backend/internal/infrastructure/auth"
	"github.com/spf13/cobra"
)

var tokenFlags struct {
	tenant  string
	subject string
	scopes  []string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the ops API",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.tenant, "tenant", "", "Tenant the token is bound to (required)")
	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "busctl", "Token subject")
	tokenCmd.Flags().StringSliceVar(&tokenFlags.scopes, "scope",
		[]string{auth.ScopePublish, auth.ScopeStatusRead}, "Granted scopes")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 0, "Lifetime (default: jwt.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	token, expiresAt, err := auth.NewJWTService(rt.cfg.JWT).GenerateToken(auth.GenerateTokenInput{
		TenantID: tokenFlags.tenant,
		Subject:  tokenFlags.subject,
		Scopes:   tokenFlags.scopes,
		TTL:      tokenFlags.ttl,
	})
	if err != nil {
		return err
	}
	cmd.Println(token)
	cmd.PrintErrf("expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
