package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/pledgeledger/internal/auth"
)

var tokenScope string

var tokenCmd = &cobra.Command{
	Use:   "token SUBJECT",
	Short: "Mint a bearer token signed with the configured secret",
	Long: `Print a JWT for SUBJECT signed with auth.jwt_secret. Intended for
development and operator scripts; production callers get tokens from the
identity provider.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenScope, "scope", "", "scope claim to embed")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Generate(args[0], tokenScope)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
