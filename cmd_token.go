package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/CrestNiraj12/rantfeed/infra/auth"
)

func (c *cli) tokenCmd() *cobra.Command {
	var (
		user  string
		name  string
		ttl   time.Duration
		write bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Mint an access token signed with RANTFEED_JWT_SECRET.

Tokens normally come from the identity provider. This command is for local
development against a server that shares the secret. With --write the
token is saved to RANTFEED_TOKEN for the client commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (RANTFEED_JWT_SECRET) is required to mint tokens")
			}
			if user == "" {
				return errors.New("--user is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			token, err := auth.Sign(c.cfg.Auth.JWTSecret, auth.Identity{UserID: user, DisplayName: name}, ttl)
			if err != nil {
				return err
			}
			if !write {
				fmt.Fprintln(c.out, token)
				return nil
			}
			path := c.cfg.Client.TokenPath
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("creating token directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
				return fmt.Errorf("writing token: %w", err)
			}
			fmt.Fprintf(c.out, "token for %s written to %s\n", user, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id carried as the token subject")
	cmd.Flags().StringVar(&name, "name", "", "Display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().BoolVar(&write, "write", false, "Save the token to the client token file")
	return cmd
}
