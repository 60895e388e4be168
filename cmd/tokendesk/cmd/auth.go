package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/internal/config"
	"github.com/jmcleod/tokendesk/internal/util"
)

var (
	loginUsername      string
	loginPasswordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the token service and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := util.NormalizeUsername(loginUsername)
		if username == "" {
			return errors.New("--username is required")
		}
		password, err := readPassword(cmd.InOrStdin(), loginPasswordStdin)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			resp, err := a.session.Login(cmd.Context(), client.LoginRequest{Username: username, Password: password})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (profile %s)\n", resp.User.Username, a.session.Namespace())
			return nil
		})
	},
}

// readPassword takes the password from stdin when asked to, otherwise from
// TOKENDESK_PASSWORD.
func readPassword(in io.Reader, fromStdin bool) (string, error) {
	if !fromStdin {
		if pw := config.GetEnv("TOKENDESK_PASSWORD", ""); pw != "" {
			return pw, nil
		}
		return "", errors.New("no password: use --password-stdin or set TOKENDESK_PASSWORD")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("empty password on stdin")
	}
	return pw, nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and remove it from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			// The bearer must be loaded for the server to revoke it.
			a.restore(cmd.Context())
			a.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user of the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			user := a.session.User()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, user)
			}
			fmt.Fprintf(out, "User:     %s\n", user.Username)
			if user.Email != "" {
				fmt.Fprintf(out, "Email:    %s\n", user.Email)
			}
			fmt.Fprintf(out, "Profile:  %s\n", a.session.Namespace())
			fmt.Fprintf(out, "Server:   %s\n", a.client.BaseURL())
			if exp, ok := a.session.ExpiresAt(); ok {
				fmt.Fprintf(out, "Expires:  %s (%s)\n", exp.Local().Format(time.RFC1123), time.Until(exp).Round(time.Minute))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
}
