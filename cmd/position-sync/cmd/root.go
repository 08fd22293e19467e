// Package cmd provides CLI commands for position-sync.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/position-sync/pkg/config"
	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
	"github.com/shunichi-ikebuchi/position-sync/pkg/pathutil"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
// Without a subcommand it runs a full sync of every market.
var rootCmd = &cobra.Command{
	Use:   "position-sync",
	Short: "Sync investment ledger positions to database tables",
	Long: `position-sync reads buy, sell and dividend records kept as JSON files,
rebuilds the open lots of every instrument and pushes them, together with
market prices and dividend yields, into remote position and plan tables.

It supports:
- Per lot cost basis adjusted by sells and net dividends
- Idempotent upserts keyed by instrument code and buy id
- Sync history in SQLite
- Local reports without remote credentials

Example:
  position-sync
  position-sync sync --market HK_CN --continue-on-error
  position-sync report
  position-sync stats`,
	Args: cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug || os.Getenv("DEBUG") == "true" {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
	Run: runSync,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statsCmd)
}

// getConfigFile returns the .env path given with --config, or "" for the default.
func getConfigFile() string {
	return cfgFile
}

// loadMarkets loads the market list and keeps the named ones.
func loadMarkets(cfg *config.Config, names []string) []market.Config {
	markets, err := market.Load(cfg.Ledger.MarketsFile)
	exitOnError(err, "failed to load markets")

	markets, err = market.Filter(markets, names...)
	exitOnError(err, "invalid --market")

	return markets
}

func newPathResolver(cfg *config.Config) *pathutil.PathResolver {
	return pathutil.New(pathutil.Config{
		LedgerRoot:   cfg.Ledger.Root,
		DatabasePath: cfg.Ledger.DBPath,
	})
}

func newLedgerRepository(pathResolver *pathutil.PathResolver) ledger.Repository {
	return ledger.NewFileSystemRepository(pathResolver)
}

// exitOnError logs err and exits with status 1.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
