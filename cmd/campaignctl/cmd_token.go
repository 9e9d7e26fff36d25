package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/handler"
)

var (
	tokenActorID string
	tokenTTL     time.Duration
)

// tokenCmd signs a bearer token for the API using AUTH_JWT_SECRET
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		return issueToken(cmd.OutOrStdout(), []byte(cfg.Auth.JWTSecret), companyID, tokenActorID, tokenTTL)
	},
}

func issueToken(out io.Writer, secret []byte, company, actor string, ttl time.Duration) error {
	if len(secret) == 0 {
		return fmt.Errorf("AUTH_JWT_SECRET is not set")
	}
	if actor == "" {
		return fmt.Errorf("--actor is required")
	}
	token, err := handler.IssueToken(secret, company, actor, ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func init() {
	tokenCmd.Flags().StringVar(&tokenActorID, "actor", "", "actor the token acts as")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
