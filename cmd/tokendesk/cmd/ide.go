package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/tokendesk/client"
)

var openEditor string

var ideCmd = &cobra.Command{
	Use:   "ide",
	Short: "Hand tokens to IDE integrations",
}

var ideEditorsCmd = &cobra.Command{
	Use:   "editors",
	Short: "List supported editors",
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		eds, err := a.client.SupportedEditors(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), eds)
		}
		out := cmd.OutOrStdout()
		for _, group := range []struct {
			name string
			list []client.Editor
		}{{"VS Code family", eds.VSCodeEditors}, {"JetBrains family", eds.JetBrainsEditors}} {
			fmt.Fprintf(out, "%s:\n", group.name)
			for _, e := range group.list {
				fmt.Fprintf(out, "  %-16s %s\n", e.ID, e.Name)
			}
		}
		return nil
	}),
}

var ideOpenCmd = &cobra.Command{
	Use:   "open <token-id>",
	Short: "Print the protocol URL that opens a token in an editor",
	Args:  cobra.ExactArgs(1),
	RunE: tokenAction(func(cmd *cobra.Command, args []string, a *app) error {
		if openEditor == "" {
			return errors.New("--editor is required")
		}
		eds, err := a.client.SupportedEditors(cmd.Context())
		if err != nil {
			return err
		}
		if _, ok := eds.Find(openEditor); !ok {
			return fmt.Errorf("unknown editor %q, see `tokendesk ide editors`", openEditor)
		}
		tok, err := a.tokens.FetchToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		res, err := a.client.OpenEditor(cmd.Context(), client.OpenEditorRequestFor(openEditor, *tok))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		if !res.Success {
			return fmt.Errorf("open %s: %s", openEditor, res.Message)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.ProtocolURL)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(ideCmd)
	ideCmd.AddCommand(ideEditorsCmd, ideOpenCmd)
	ideOpenCmd.Flags().StringVarP(&openEditor, "editor", "e", "", "Editor id, see `tokendesk ide editors`")
}
