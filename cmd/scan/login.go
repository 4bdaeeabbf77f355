package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"viammo.app/tripscan/internal/mailbox"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize read-only Gmail access and cache the token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.Google.Enabled() {
			return errors.New("GOOGLE_CLOUD_GMAIL_CLIENT_ID and GOOGLE_CLOUD_GMAIL_CLIENT_SECRET are required")
		}
		oauthCfg := mailbox.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)

		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Open this URL and paste the code parameter from the redirect:\n\n%s\n\ncode: ",
			mailbox.AuthURL(oauthCfg, hex.EncodeToString(b)))

		code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading code: %w", err)
		}

		tok, err := oauthCfg.Exchange(cmd.Context(), strings.TrimSpace(code))
		if err != nil {
			return fmt.Errorf("exchanging code: %w", err)
		}
		if err := mailbox.SaveToken(tokenFile, tok); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", tokenFile)
		return nil
	},
}
