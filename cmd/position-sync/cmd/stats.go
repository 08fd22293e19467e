package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/position-sync/pkg/config"
	"github.com/shunichi-ikebuchi/position-sync/pkg/db"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats [market code [buy-id]]",
	Short: "Display sync statistics",
	Long: `Display statistics about synced position rows and runs.

Shows:
- Number of lot rows pushed, open and closed
- Number of runs and failed runs
- The last run, its status and skipped instruments
- Last sync timestamp

With a market and code, shows the last sync of that lot instead, or of
the plan row when no buy id is given.

Example:
  position-sync stats
  position-sync stats HK_CN 0700 b1`,
	Args: cobra.RangeArgs(0, 3),
	Run:  runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	if err := cfg.Validate([]string{"ledger", "root"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	dbPath := newPathResolver(cfg).GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)

	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	syncHistory := db.NewSyncHistory(conn)

	if len(args) > 0 {
		if len(args) == 1 {
			exitOnError(fmt.Errorf("a code is required after market %q", args[0]), "invalid arguments")
		}
		buyID := ""
		if len(args) == 3 {
			buyID = args[2]
		}
		exitOnError(printSyncRecord(os.Stdout, syncHistory, args[0], args[1], buyID), "failed to get sync record")
		return
	}

	stats, err := syncHistory.GetStats()
	exitOnError(err, "failed to get statistics")

	lastSuccess, err := syncHistory.GetMetadata(metadataLastSuccess)
	exitOnError(err, "failed to get metadata")

	fmt.Println("\n=== Sync Statistics ===")
	fmt.Printf("Lot rows:      %d (%d open, %d closed)\n", stats.TotalRows, stats.OpenRows, stats.ClosedRows)
	fmt.Printf("Runs:          %d (%d failed)\n", stats.TotalRuns, stats.FailedRuns)

	if stats.LastRun != nil {
		fmt.Printf("Last run:      %s %s (started %s)\n",
			stats.LastRun.ID, stats.LastRun.Status, stats.LastRun.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Skipped:       %d\n", stats.LastFailures)
	} else {
		fmt.Printf("Last run:      (never)\n")
	}

	if stats.LastSync.Valid {
		fmt.Printf("Last sync:     %s\n", stats.LastSync.String)
	} else {
		fmt.Printf("Last sync:     (never)\n")
	}
	if lastSuccess != "" {
		fmt.Printf("Last success:  %s\n", lastSuccess)
	}

	fmt.Println()
}

// printSyncRecord writes the last sync of one row. An empty buyID selects
// the plan row of the instrument.
func printSyncRecord(w io.Writer, h *db.SyncHistory, market, code, buyID string) error {
	rec, err := h.GetSyncRecord(market, code, buyID)
	if err != nil {
		return err
	}

	row := market + "/" + code
	if buyID != "" {
		row += "/" + buyID
	}
	if rec == nil {
		_, err = fmt.Fprintf(w, "%s: never synced\n", row)
		return err
	}

	_, err = fmt.Fprintf(w, "%s: %s in run %s at %s (page %s, quantity %v, price %v)\n",
		row, rec.Action, rec.RunID, rec.SyncedAt.Format("2006-01-02 15:04:05"),
		rec.PageID, rec.Quantity, rec.Price)
	return err
}
