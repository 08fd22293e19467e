// Package reconcile drives a sync: for every market and instrument it loads
// the ledger, rebuilds the lots, fetches a quote and pushes the derived rows
// into the remote position and plan tables.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shunichi-ikebuchi/position-sync/pkg/db"
	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
	"github.com/shunichi-ikebuchi/position-sync/pkg/position"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
	"github.com/shunichi-ikebuchi/position-sync/pkg/valuation"
)

// Store is the subset of the remote table client a sync needs.
type Store interface {
	EnsureSchema(ctx context.Context, tableID string, required tablestore.Schema) error
	Upsert(ctx context.Context, tableID string, key []tablestore.KeyField, create, update tablestore.Properties) (tablestore.UpsertResult, error)
	UpdateExisting(ctx context.Context, tableID string, key []tablestore.KeyField, update tablestore.Properties) (tablestore.UpsertResult, error)
}

// Recorder logs what a sync pushed. *db.SyncHistory implements it.
type Recorder interface {
	RecordSyncs(records []db.SyncRecord) error
	RecordFailure(f db.Failure) error
}

// Options tune a Reconciler.
type Options struct {
	// ContinueOnError skips an instrument whose ledger fails to load instead
	// of aborting the run. Remote and quote errors always abort.
	ContinueOnError bool

	// RunID tags the records passed to the Recorder.
	RunID string

	// Now returns the sync date written to plan rows. Default: time.Now.
	Now func() time.Time
}

// Reconciler syncs ledger positions into the remote tables.
type Reconciler struct {
	ledger   ledger.Repository
	quotes   valuation.Provider
	store    Store
	recorder Recorder
	opts     Options
}

// New creates a Reconciler. recorder may be nil.
func New(repo ledger.Repository, quotes valuation.Provider, store Store, recorder Recorder, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		ledger:   repo,
		quotes:   quotes,
		store:    store,
		recorder: recorder,
		opts:     opts,
	}
}

// InstrumentResult is the outcome of syncing one instrument.
type InstrumentResult struct {
	Market     string
	Code       string
	Created    int
	Updated    int
	Closed     int
	Activities int
	Err        error
}

// Report summarizes a run.
type Report struct {
	Instruments []InstrumentResult
}

// Failed returns the instruments that were skipped because of an error.
func (r Report) Failed() []InstrumentResult {
	var failed []InstrumentResult
	for _, i := range r.Instruments {
		if i.Err != nil {
			failed = append(failed, i)
		}
	}
	return failed
}

// Totals sums the row counts of every instrument.
func (r Report) Totals() (created, updated, closed int) {
	for _, i := range r.Instruments {
		created += i.Created
		updated += i.Updated
		closed += i.Closed
	}
	return created, updated, closed
}

// Activities sums the activity rows written for every instrument.
func (r Report) Activities() int {
	n := 0
	for _, i := range r.Instruments {
		n += i.Activities
	}
	return n
}

// Run syncs every market in order. It returns the report of the work done so
// far together with the first fatal error.
func (r *Reconciler) Run(ctx context.Context, markets []market.Config) (Report, error) {
	var report Report
	for _, cfg := range markets {
		if err := r.SyncMarket(ctx, cfg, &report); err != nil {
			return report, fmt.Errorf("market %s: %w", cfg.Name, err)
		}
	}
	return report, nil
}

// SyncMarket ensures the market tables and syncs each of its instruments,
// appending the outcomes to report.
func (r *Reconciler) SyncMarket(ctx context.Context, cfg market.Config, report *Report) error {
	slog.Info("Syncing market", "market", cfg.Name, "table", cfg.PositionTableID)

	if err := r.store.EnsureSchema(ctx, cfg.PositionTableID, PositionSchema(cfg)); err != nil {
		return fmt.Errorf("position table: %w", err)
	}
	if cfg.PlanTableID != "" {
		if err := r.store.EnsureSchema(ctx, cfg.PlanTableID, PlanSchema(cfg)); err != nil {
			return fmt.Errorf("plan table: %w", err)
		}
	}
	if cfg.ActivityTableID != "" {
		if err := r.store.EnsureSchema(ctx, cfg.ActivityTableID, ActivitySchema(cfg)); err != nil {
			return fmt.Errorf("activity table: %w", err)
		}
	}

	codes, err := r.ledger.ListCodes(cfg)
	if err != nil {
		return fmt.Errorf("failed to list instruments: %w", err)
	}
	slog.Info("Found instruments", "market", cfg.Name, "count", len(codes))

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := r.SyncInstrument(ctx, cfg, code)
		if err == nil {
			report.Instruments = append(report.Instruments, result)
			continue
		}

		var loadErr *ledgerError
		if !r.opts.ContinueOnError || !errors.As(err, &loadErr) {
			return err
		}

		slog.Warn("Skipping instrument", "market", cfg.Name, "code", code, "error", err)
		result.Err = err
		report.Instruments = append(report.Instruments, result)
		if r.recorder != nil {
			if rerr := r.recorder.RecordFailure(db.Failure{
				RunID:  r.opts.RunID,
				Market: cfg.Name,
				Code:   code,
				Error:  err.Error(),
			}); rerr != nil {
				return rerr
			}
		}
	}

	return nil
}

// ledgerError marks errors confined to one instrument's ledger files.
type ledgerError struct {
	err error
}

func (e *ledgerError) Error() string { return e.err.Error() }
func (e *ledgerError) Unwrap() error { return e.err }

// SyncInstrument pushes the lots and plan row of one instrument.
func (r *Reconciler) SyncInstrument(ctx context.Context, cfg market.Config, code string) (InstrumentResult, error) {
	result := InstrumentResult{Market: cfg.Name, Code: code}

	stock, err := r.ledger.LoadStock(cfg, code)
	if err != nil {
		return result, &ledgerError{err: err}
	}

	book := position.Build(stock, cfg)
	slog.Debug("Rebuilt lots", "code", code, "lots", len(book.Entries),
		"quantity", book.Summary.TotalQuantity, "average", book.Summary.AveragePrice)

	quote, err := r.quotes.Quote(ctx, code, cfg)
	if errors.Is(err, valuation.ErrNoData) {
		slog.Warn("No market data", "code", code, "symbol", valuation.Symbol(code, cfg))
		quote, err = valuation.Quote{}, nil
	}
	if err != nil {
		return result, fmt.Errorf("instrument %s: quote: %w", code, err)
	}

	var records []db.SyncRecord
	record := func(buyID, pageID string, action db.Action, quantity, price float64) {
		records = append(records, db.SyncRecord{
			RunID:    r.opts.RunID,
			Market:   cfg.Name,
			Code:     code,
			BuyID:    buyID,
			PageID:   pageID,
			Action:   action,
			Quantity: quantity,
			Price:    price,
		})
	}

	for _, e := range book.Entries {
		key := positionKey(code, e.ID)

		if !e.Open() {
			res, err := r.store.UpdateExisting(ctx, cfg.PositionTableID, key, closedUpdate())
			if err != nil {
				return result, fmt.Errorf("instrument %s: lot %s: %w", code, e.ID, err)
			}
			if res.PageID != "" {
				result.Closed++
				record(e.ID, res.PageID, db.ActionClosed, 0, e.Price)
			}
			continue
		}

		res, err := r.store.Upsert(ctx, cfg.PositionTableID, key, positionCreate(e, cfg), positionUpdate(e, quote, cfg))
		if err != nil {
			return result, fmt.Errorf("instrument %s: lot %s: %w", code, e.ID, err)
		}
		action := db.ActionUpdated
		if res.Created {
			action = db.ActionCreated
			result.Created++
		} else {
			result.Updated++
		}
		record(e.ID, res.PageID, action, e.Quantity, e.Price)
	}

	if cfg.PlanTableID != "" {
		today := ledger.NewDate(r.opts.Now().Date()).String()
		res, err := r.store.Upsert(ctx, cfg.PlanTableID, tablestore.Key(ColCode, code), nil, planUpdate(book.Summary, today))
		if err != nil {
			return result, fmt.Errorf("instrument %s: plan: %w", code, err)
		}
		action := db.ActionUpdated
		if res.Created {
			action = db.ActionCreated
		}
		record("", res.PageID, action, book.Summary.TotalQuantity, book.Summary.AveragePrice)
	}

	if cfg.ActivityTableID != "" {
		for _, a := range activities(stock) {
			if _, err := r.store.Upsert(ctx, cfg.ActivityTableID, activityKey(code, a.Event), nil, activityUpdate(a)); err != nil {
				return result, fmt.Errorf("instrument %s: activity %s: %w", code, a.Event, err)
			}
			result.Activities++
		}
	}

	slog.Info("Synced instrument", "market", cfg.Name, "code", code,
		"created", result.Created, "updated", result.Updated, "closed", result.Closed,
		"activities", result.Activities)

	if r.recorder != nil {
		if err := r.recorder.RecordSyncs(records); err != nil {
			return result, err
		}
	}
	return result, nil
}
