package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"staffdesk.org/internal/identity"
)

var (
	tokenSubject string
	tokenEmail   string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an HS256 bearer token for local development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.HMACSecret == "" {
			return errors.New("auth.hmac_secret is not configured")
		}
		issuer, err := identity.NewHMACIssuer(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return err
		}
		token, exp, err := issuer.Issue(tokenSubject, tokenEmail, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "subject id")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
}
