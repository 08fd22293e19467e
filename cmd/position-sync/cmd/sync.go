package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/position-sync/pkg/config"
	"github.com/shunichi-ikebuchi/position-sync/pkg/db"
	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/reconcile"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
	"github.com/shunichi-ikebuchi/position-sync/pkg/valuation"
)

// Metadata key of the last successful sync time.
const metadataLastSuccess = "last_success"

var (
	marketNames     []string
	continueOnError bool
	dryRun          bool
)

// syncCmd represents the sync command.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync ledger positions to the remote tables",
	Long: `Sync ledger positions to the remote position and plan tables.

This command:
1. Ensures every market table has the required columns
2. Loads and validates the ledger of each instrument
3. Rebuilds the open lots and their adjusted cost
4. Fetches market prices and trailing dividends
5. Creates or updates one row per lot and one plan row per instrument
6. Records the run in the SQLite sync history

A ledger validation error stops the run with exit status 1, unless
--continue-on-error is given.

Example:
  position-sync sync
  position-sync sync --market HK_CN --continue-on-error
  position-sync sync --dry-run`,
	Args: cobra.NoArgs,
	Run:  runSync,
}

func init() {
	// The root command runs a sync too, so it takes the same flags.
	for _, c := range []*cobra.Command{rootCmd, syncCmd} {
		c.Flags().StringSliceVar(&marketNames, "market", nil, "Market names to sync (default: all)")
		c.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Skip instruments whose ledger is invalid")
		c.Flags().BoolVar(&dryRun, "dry-run", false, "Dry run mode (no remote writes)")
	}
}

func runSync(cmd *cobra.Command, args []string) {
	slog.Info("Starting sync", "markets", marketNames, "continue_on_error", continueOnError, "dry_run", dryRun)

	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	required := [][]string{
		{"ledger", "root"},
		{"quotes", "apiUrl"},
	}
	if !dryRun {
		required = append(required,
			[]string{"notion", "secret"},
			[]string{"notion", "apiUrl"},
		)
	}
	if err := cfg.Validate(required...); err != nil {
		exitOnError(err, "invalid configuration")
	}

	markets := loadMarkets(cfg, marketNames)
	pathResolver := newPathResolver(cfg)
	repo := newLedgerRepository(pathResolver)

	quotes, err := valuation.NewYahooClient(valuation.ClientConfig{
		BaseURL:  cfg.Quotes.APIURL,
		Proxy:    cfg.Quotes.Proxy,
		CacheTTL: cfg.Quotes.CacheTTL,
	})
	exitOnError(err, "failed to create quote client")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dryRun {
		r := reconcile.New(repo, quotes, reconcile.DryRunStore{}, nil, reconcile.Options{
			ContinueOnError: continueOnError,
		})
		report, err := r.Run(ctx, markets)
		printReport(report)
		exitOnSyncError(err)
		return
	}

	dbPath := pathResolver.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	syncHistory := db.NewSyncHistory(conn)
	runID, err := syncHistory.StartRun()
	exitOnError(err, "failed to start run")

	store := tablestore.NewClient(tablestore.ClientConfig{
		APIURL:  cfg.Notion.APIURL,
		Token:   cfg.Notion.Secret,
		Version: cfg.Notion.Version,
		Timeout: cfg.Notion.Timeout,
	})

	r := reconcile.New(repo, quotes, store, syncHistory, reconcile.Options{
		ContinueOnError: continueOnError,
		RunID:           runID,
	})

	report, err := r.Run(ctx, markets)
	printReport(report)

	status := db.RunSucceeded
	if err != nil {
		status = db.RunFailed
	}
	if ferr := syncHistory.FinishRun(runID, status); ferr != nil {
		slog.Error("Failed to finish run", "run_id", runID, "error", ferr)
	}
	if err != nil {
		conn.Close()
		exitOnSyncError(err)
	}

	if err := syncHistory.SetMetadata(metadataLastSuccess, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Error("Failed to record last success", "error", err)
	}

	slog.Info("Sync completed", "run_id", runID)
}

// exitOnSyncError exits with status 1, naming the instrument and record of
// ledger validation errors.
func exitOnSyncError(err error) {
	if err == nil {
		return
	}

	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		slog.Error("Invalid ledger", "code", verr.Code, "kind", verr.Kind, "buy_id", verr.BuyID)
		fmt.Fprintf(os.Stderr, "Error: invalid ledger for instrument %s: %v\n", verr.Code, err)
		os.Exit(1)
	}
	exitOnError(err, "sync failed")
}

func printReport(report reconcile.Report) {
	created, updated, closed := report.Totals()

	fmt.Println("\n=== Sync Summary ===")
	fmt.Printf("Instruments:  %d\n", len(report.Instruments))
	fmt.Printf("Rows created: %d\n", created)
	fmt.Printf("Rows updated: %d\n", updated)
	fmt.Printf("Lots closed:  %d\n", closed)
	fmt.Printf("Activities:   %d\n", report.Activities())

	if failed := report.Failed(); len(failed) > 0 {
		fmt.Printf("Skipped:      %d\n", len(failed))
		for _, f := range failed {
			fmt.Printf("  %s/%s: %v\n", f.Market, f.Code, f.Err)
		}
	}
	fmt.Println()
}
