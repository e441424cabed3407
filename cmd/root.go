package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/internal/config"
)

var cfg *config.Config

// Persistent flags that override config.yaml and ECOCOLLECT_* values.
var (
	flagAPIURL   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ecocollect",
	Short: "Find recycling collection centers",
	Long: "Lists Eco-Collect collection centers with search, waste-type, open-now and distance filters, " +
		"shows center details and builds directions links. Falls back to cached or demo data when the backend is unreachable.",
	SilenceUsage:      true,
	PersistentPreRunE: prepareRun,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// prepareRun loads configuration, applies flag overrides and installs the
// global logger before any subcommand runs.
func prepareRun(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "ecocollect: load config")
	}
	if flagAPIURL != "" {
		c.API.BaseURL = strings.TrimRight(flagAPIURL, "/")
	}
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "ecocollect: init logger")
	}
	zap.L().Debug("config loaded",
		zap.String("command", cmd.CommandPath()),
		zap.String("api", cfg.API.BaseURL),
		zap.String("store", cfg.Store.Driver),
	)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "backend base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error (overrides log.level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
