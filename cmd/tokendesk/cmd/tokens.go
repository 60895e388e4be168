package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/tokens"
)

var (
	listSkip   int
	listLimit  int
	listFilter string

	tokenNote      string
	tokenAccess    string
	tokenTenantURL string
	tokenPortalURL string
	tokenMaxUsage  int

	exportOutput string
	exportAll    bool

	importFormat string
)

const (
	importFormatFile = "file"
	importFormatJSON = "json"
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"token", "t"},
	Short:   "Manage tokens held by the token service",
}

// tokenAction runs fn with an authenticated app.
func tokenAction(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			err := fn(cmd, args, a)
			if client.IsUnauthorized(err) {
				return fmt.Errorf("%w: the server rejected the session for profile %q, run `tokendesk login`", err, cfg.Profile)
			}
			return err
		})
	}
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens",
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		filter, ok := tokens.ParseFilter(listFilter)
		if !ok {
			return fmt.Errorf("unknown filter %q: use all, valid or invalid", listFilter)
		}
		if _, err := a.tokens.FetchTokens(cmd.Context(), listSkip, listLimit); err != nil {
			return err
		}
		var list []client.Token
		switch filter {
		case tokens.FilterValid:
			list = a.tokens.Valid()
		case tokens.FilterInvalid:
			list = a.tokens.Invalid()
		default:
			list = a.tokens.Tokens()
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), list)
		}
		if err := printTokens(cmd.OutOrStdout(), list); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d shown, %d fetched (%d valid, %d invalid)\n",
			len(list), a.tokens.Count(), len(a.tokens.Valid()), len(a.tokens.Invalid()))
		return nil
	}),
}

var tokensGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a token",
	Args:  cobra.ExactArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		tok, err := a.tokens.FetchToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tok)
		}
		return printToken(cmd.OutOrStdout(), *tok)
	}),
}

var tokensCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a token",
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		if tokenAccess == "" || tokenTenantURL == "" {
			return errors.New("--access-token and --tenant-url are required")
		}
		in := client.TokenCreate{
			EmailNote:   tokenNote,
			AccessToken: tokenAccess,
			TenantURL:   tokenTenantURL,
			PortalURL:   tokenPortalURL,
		}
		if cmd.Flags().Changed("max-usage") {
			in.MaxUsage = &tokenMaxUsage
		}
		tok, err := a.tokens.CreateToken(cmd.Context(), in)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tok)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created token %s (%s)\n", tok.ID, tok.Label())
		return nil
	}),
}

var tokensUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a token",
	Args:  cobra.ExactArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		var in client.TokenUpdate
		flags := cmd.Flags()
		if flags.Changed("note") {
			in.EmailNote = &tokenNote
		}
		if flags.Changed("access-token") {
			in.AccessToken = &tokenAccess
		}
		if flags.Changed("tenant-url") {
			in.TenantURL = &tokenTenantURL
		}
		if flags.Changed("portal-url") {
			in.PortalURL = &tokenPortalURL
		}
		if flags.Changed("max-usage") {
			in.MaxUsage = &tokenMaxUsage
		}
		if in == (client.TokenUpdate{}) {
			return errors.New("nothing to update")
		}
		tok, err := a.tokens.UpdateToken(cmd.Context(), args[0], in)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tok)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated token %s\n", tok.ID)
		return nil
	}),
}

var tokensDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a token",
	Args:  cobra.ExactArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.tokens.DeleteToken(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted token %s\n", args[0])
		return nil
	}),
}

var tokensValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Check a token against its portal",
	Args:  cobra.ExactArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		res, err := a.tokens.ValidateToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		state := "valid"
		if !res.IsValid {
			state = "invalid"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token %s is %s: %s\n", args[0], state, res.Message)
		return nil
	}),
}

var tokensRefreshCmd = &cobra.Command{
	Use:   "refresh <id>",
	Short: "Refresh a token's portal information",
	Args:  cobra.ExactArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		tok, err := a.tokens.RefreshToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tok)
		}
		return printToken(cmd.OutOrStdout(), *tok)
	}),
}

var tokensStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate token counters",
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		stats, err := a.tokens.FetchStatistics(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Total:      %d\n", stats.TotalTokens)
		fmt.Fprintf(out, "Valid:      %d\n", stats.ValidTokens)
		fmt.Fprintf(out, "Expired:    %d\n", stats.ExpiredTokens)
		fmt.Fprintf(out, "Unlimited:  %d\n", stats.UnlimitedTokens)
		fmt.Fprintf(out, "Credits:    %g (%g available)\n", stats.TotalCredits, stats.AvailableCredits)
		return nil
	}),
}

var tokensExportCmd = &cobra.Command{
	Use:   "export [id...]",
	Short: "Download tokens as a JSON file",
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		ids := args
		if exportAll {
			list, err := a.tokens.FetchTokens(cmd.Context(), tokens.DefaultSkip, tokens.DefaultLimit)
			if err != nil {
				return err
			}
			ids = make([]string, 0, len(list))
			for _, t := range list {
				ids = append(ids, t.ID)
			}
		}
		if len(ids) == 0 {
			return errors.New("give token ids or --all")
		}
		f, err := a.tokens.ExportTokens(cmd.Context(), ids)
		if err != nil {
			return err
		}
		if exportOutput == "-" {
			_, err := cmd.OutOrStdout().Write(f.Data)
			return err
		}
		path := exportOutput
		if path == "" {
			path = f.Filename
		}
		if err := os.WriteFile(path, f.Data, 0o600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tokens to %s\n", len(ids), path)
		return nil
	}),
}

var tokensImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upload a token file",
	Long: `Upload a token file. With --format file (the default) the file is sent
as-is and parsed by the server. With --format json it is decoded here, either
as {"tokens": [...]} or as a bare list, and sent as a JSON import.`,
	Args: cobra.ExactArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		out := cmd.OutOrStdout()
		switch importFormat {
		case importFormatFile:
			res, err := a.tokens.ImportTokens(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "%s: %d imported, %d failed\n", res.Message, res.SuccessCount, res.FailedCount)
			for _, r := range res.Results {
				if !r.Success {
					fmt.Fprintf(out, "  failed %s: %s\n", r.EmailNote, r.Error)
				}
			}
			return nil
		case importFormatJSON:
			list, err := readTokenList(f)
			if err != nil {
				return err
			}
			res, err := a.tokens.ImportTokenList(cmd.Context(), list)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "%d imported, %d failed\n", res.SuccessCount, res.FailedCount)
			for _, msg := range res.Errors {
				fmt.Fprintf(out, "  %s\n", msg)
			}
			return nil
		default:
			return fmt.Errorf("unknown import format %q: use %s or %s", importFormat, importFormatFile, importFormatJSON)
		}
	}),
}

// readTokenList decodes {"tokens": [...]} or a bare list of token records.
func readTokenList(r io.Reader) ([]client.TokenCreate, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode import file: %w", err)
	}
	var list []client.TokenCreate
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode token list: %w", err)
		}
	} else {
		var req client.TokenImportRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decode token list: %w", err)
		}
		list = req.Tokens
	}
	if len(list) == 0 {
		return nil, errors.New("import file holds no tokens")
	}
	return list, nil
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(
		tokensListCmd,
		tokensGetCmd,
		tokensCreateCmd,
		tokensUpdateCmd,
		tokensDeleteCmd,
		tokensValidateCmd,
		tokensRefreshCmd,
		tokensStatsCmd,
		tokensExportCmd,
		tokensImportCmd,
	)

	tokensListCmd.Flags().IntVar(&listSkip, "skip", tokens.DefaultSkip, "Records to skip")
	tokensListCmd.Flags().IntVar(&listLimit, "limit", tokens.DefaultLimit, "Records to fetch")
	tokensListCmd.Flags().StringVar(&listFilter, "filter", string(tokens.FilterAll), "Partition to show: all, valid or invalid")

	for _, c := range []*cobra.Command{tokensCreateCmd, tokensUpdateCmd} {
		c.Flags().StringVar(&tokenNote, "note", "", "Email note")
		c.Flags().StringVar(&tokenAccess, "access-token", "", "Access token value")
		c.Flags().StringVar(&tokenTenantURL, "tenant-url", "", "Tenant URL")
		c.Flags().StringVar(&tokenPortalURL, "portal-url", "", "Portal URL")
		c.Flags().IntVar(&tokenMaxUsage, "max-usage", 0, "Maximum number of uses")
	}

	tokensExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file, - for stdout (default: server filename)")
	tokensExportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every token on the first page")

	tokensImportCmd.Flags().StringVar(&importFormat, "format", importFormatFile, "How to send the file: file (multipart upload) or json")
}
