package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raj783e/campus/cmd/internal/app"
	"github.com/raj783e/campus/cmd/security/token"
)

var tokenTTL time.Duration

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default CAMPUS_SESSION_TOKEN_TTL)")
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a session token for a user id",
	Long: `Issue a session token signed with CAMPUS_TOKEN_HMAC_KEY.

The token is what a client sends in hello.token and as an upload bearer token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := app.NewTokenSigner()
		if err != nil {
			return err
		}
		if signer == nil {
			return fmt.Errorf("%s is not set", token.HMACEnvKey)
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.SessionTokenTTL
		}
		tok, err := signer.Issue(args[0], ttl)
		if errors.Is(err, token.ErrTokenInvalid) {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}
