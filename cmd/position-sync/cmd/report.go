package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/position-sync/pkg/config"
	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/report"
)

var (
	reportMarkets []string
	reportFormat  string
	reportStyle   string
)

// reportCmd represents the report command.
var reportCmd = &cobra.Command{
	Use:   "report [code...]",
	Short: "Show rebuilt positions without syncing",
	Long: `Rebuild the lots of every instrument from the ledger files and print
them. No remote credentials are needed.

Formats:
- text: aligned columns (default)
- markdown: markdown tables
- pretty: markdown rendered for the terminal

Example:
  position-sync report
  position-sync report --market HK_CN 0700 0005
  position-sync report --format pretty`,
	Run: runReport,
}

func init() {
	reportCmd.Flags().StringSliceVar(&reportMarkets, "market", nil, "Market names to report (default: all)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text, markdown or pretty")
	reportCmd.Flags().StringVar(&reportStyle, "style", "auto", "Style of the pretty format (auto, dark, light, notty)")
}

func runReport(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	if err := cfg.Validate([]string{"ledger", "root"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	markets := loadMarkets(cfg, reportMarkets)
	repo := newLedgerRepository(newPathResolver(cfg))

	sections, err := report.Build(repo, markets, args...)
	if ledger.IsValidation(err) {
		exitOnSyncError(err)
	}
	exitOnError(err, "failed to build report")

	switch reportFormat {
	case "text":
		err = report.Text(os.Stdout, sections)
	case "markdown":
		err = report.Markdown(os.Stdout, sections)
	case "pretty":
		err = report.Pretty(os.Stdout, sections, reportStyle)
	default:
		err = fmt.Errorf("unknown format %q", reportFormat)
	}
	exitOnError(err, "failed to write report")
}
