package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/maxrelay/maxrelay/internal/config"
	"github.com/maxrelay/maxrelay/internal/oauth"
	"github.com/maxrelay/maxrelay/internal/utils"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize the gateway with a subscription account",
		Long: `Runs the one-time authorization-code flow: prints a consent URL to open
in a browser, then exchanges the pasted code for OAuth credentials and
stores them for the serve command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin()
		},
	}
}

func runLogin() error {
	logger := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.OAuth.ClientID) == "" {
		return fmt.Errorf("oauth client id is required (MAXRELAY_CLIENT_ID)")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tokens := oauth.NewManager(st, cfg, logger)

	verifier, err := oauth.GenerateVerifier()
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in a browser and authorize the gateway:")
	fmt.Println()
	fmt.Println("  " + tokens.AuthorizeURL(verifier))
	fmt.Println()
	fmt.Print("Paste the code shown after approval: ")

	code, err := readCode()
	if err != nil {
		return fmt.Errorf("read authorization code: %w", err)
	}
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rec, err := tokens.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("Authorized. Access token %s, valid until %s.\n",
		utils.MaskKey(rec.AccessToken),
		time.UnixMilli(rec.ExpiresAt).Format(time.RFC3339))
	return nil
}

// readCode reads the pasted code without echoing it when stdin is a
// terminal.
func readCode() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	var code string
	if _, err := fmt.Fscanln(os.Stdin, &code); err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}
