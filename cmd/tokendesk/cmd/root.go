package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/tokendesk/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	dataDir     string
	apiURL      string
	profile     string
	storeKind   string
	logLevel    string
	logFormat   string
	httpTimeout time.Duration
	jsonOutput  bool
)

// cfg is resolved before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "tokendesk",
	Short: "tokendesk manages API tokens held by a token service",
	Long: `tokendesk is an administrative client for a token service. It keeps an
authenticated session, lists and edits managed tokens, runs batch jobs and
hands tokens to IDE integrations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(dataDir)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("api-url") {
			loaded.APIURL = apiURL
		}
		if flags.Changed("profile") {
			loaded.Profile = profile
		}
		if flags.Changed("store") {
			loaded.Store.Backend = storeKind
		}
		if flags.Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if flags.Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		if flags.Changed("timeout") {
			loaded.Timeout = httpTimeout
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data-dir", "", "Directory for config and session data (default $TOKENDESK_DATA_DIR or the user config dir)")
	pf.StringVar(&apiURL, "api-url", "", "Base URL of the token service")
	pf.StringVarP(&profile, "profile", "p", "", "Session profile name")
	pf.StringVar(&storeKind, "store", "", "Session store backend: bolt, memory, redis or postgres")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: console or json")
	pf.DurationVar(&httpTimeout, "timeout", 0, "Timeout for each call to the token service")
	pf.BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
	rootCmd.Version = Version
}
