package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/tokendesk/console"
)

var consoleAddr string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Serve the local JSON console",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.ConsoleAddr
		if cmd.Flags().Changed("addr") {
			addr = consoleAddr
		}

		return withApp(cmd.Context(), func(a *app) error {
			a.restore(cmd.Context())
			a.logger.Info().
				Str("profile", a.session.Namespace()).
				Str("phase", a.session.Phase().String()).
				Msg("session restored")

			c := console.New(a.session, a.tokens, a.client,
				console.WithLogger(a.logger.With().Str("component", "console").Logger()))

			server := &http.Server{
				Addr:              addr,
				Handler:           c.Router(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      2 * cfg.Timeout,
				IdleTimeout:       60 * time.Second,
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			done := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					done <- fmt.Errorf("console failed: %w", err)
					return
				}
				done <- nil
			}()

			printBanner(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "Console listening on http://%s (API: %s, profile: %s)\n",
				addr, a.client.BaseURL(), a.session.Namespace())

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case sig := <-quit:
				fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("console shutdown failed: %w", err)
				}
				return nil
			case err := <-done:
				return err
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8420)")
}
