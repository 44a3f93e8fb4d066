package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/settings"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

var loginIndexURL string
var loginTokenStdin bool

func newLoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:        "login",
		SuggestFor: []string{"auth", "authenticate", "token"},
		Short:      "Store an upload token for manual publishes",
		Long: `Store an upload token for an index.

Pipeline runs use trusted publishing and never read this token; it only
serves manual ` + "`slipway publish`" + ` from a workstation.`,
		RunE: login,
		Args: cobra.MaximumNArgs(0),
	}
	cmd.Flags().StringVar(&loginIndexURL, "index-url", global.DefaultIndexURL, "Upload endpoint the token is for")
	cmd.Flags().BoolVar(&loginTokenStdin, "token-stdin", false, "Read the token from stdin instead of prompting")
	return cmd
}

func login(cmd *cobra.Command, args []string) error {
	token, err := readToken()
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("no token provided")
	}

	userSettings, err := settings.Load()
	if err != nil {
		return err
	}
	userSettings.SetToken(loginIndexURL, token)
	if err := userSettings.Save(); err != nil {
		return err
	}

	console.Infof("Token stored for %s", loginIndexURL)
	return nil
}

func readToken() (string, error) {
	if loginTokenStdin {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return "", scanner.Err()
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	fmt.Fprintf(os.Stderr, "Upload token for %s: ", loginIndexURL)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token (pipe it with --token-stdin in non-interactive use): %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
