package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run an action over several tokens",
}

var batchDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete several tokens",
	Args:  cobra.MinimumNArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		res, err := a.tokens.BatchDeleteTokens(cmd.Context(), args)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d deleted, %d failed\n", res.SuccessCount, res.FailedCount)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
		return nil
	}),
}

var batchValidateCmd = &cobra.Command{
	Use:   "validate <id>...",
	Short: "Validate several tokens",
	Args:  cobra.MinimumNArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		res, err := a.tokens.BatchValidateTokens(cmd.Context(), args)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		out := cmd.OutOrStdout()
		for _, r := range res.Results {
			state := "valid"
			if !r.IsValid {
				state = "invalid"
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", r.TokenID, state, r.Message)
		}
		return nil
	}),
}

var batchRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh every token and reload the list",
	Args:  cobra.NoArgs,
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		res, err := a.tokens.BatchRefreshTokens(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d refreshed, %d failed\n", res.SuccessCount, res.FailedCount)
		for _, r := range res.Results {
			if r.Status != "success" {
				fmt.Fprintf(out, "  %s %s: %s\n", r.TokenID, r.EmailNote, r.Error)
			}
		}
		return printTokens(out, a.tokens.Tokens())
	}),
}

func init() {
	tokensCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchDeleteCmd, batchValidateCmd, batchRefreshCmd)
}
