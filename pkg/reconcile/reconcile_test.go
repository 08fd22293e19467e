package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/position-sync/pkg/db"
	"github.com/shunichi-ikebuchi/position-sync/pkg/emulator"
	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
	"github.com/shunichi-ikebuchi/position-sync/pkg/pathutil"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
	"github.com/shunichi-ikebuchi/position-sync/pkg/valuation"
)

type fakeQuotes struct {
	quotes map[string]valuation.Quote
	errs   map[string]error
	calls  []string
}

func (f *fakeQuotes) Quote(_ context.Context, code string, cfg market.Config) (valuation.Quote, error) {
	f.calls = append(f.calls, valuation.Symbol(code, cfg))
	if err, ok := f.errs[code]; ok {
		return valuation.Quote{}, err
	}
	return f.quotes[code], nil
}

func ptr(f float64) *float64 { return &f }

type fixture struct {
	root    string
	cfg     market.Config
	srv     *emulator.TestServer
	client  *tablestore.Client
	repo    *ledger.FileSystemRepository
	quotes  *fakeQuotes
	history *db.SyncHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	srv := emulator.NewTestServer(t)
	srv.CreateDatabase(t, "positions", nil)
	srv.CreateDatabase(t, "plans", nil)

	conn, err := db.Open(filepath.Join(root, ".sync", "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{
		root: root,
		cfg: market.Config{
			Name:            "HK_CN",
			PositionTableID: "positions",
			PlanTableID:     "plans",
			CurrencyFormat:  "hong_kong_dollar",
			Currency:        "HKD",
			TaxRate:         0.1,
			DataFolder:      "hk_cn",
			TickerSuffix:    ".HK",
			DefaultTarget:   0.1,
		},
		srv:     srv,
		client:  srv.Client(2),
		repo:    ledger.NewFileSystemRepository(pathutil.New(pathutil.Config{LedgerRoot: root})),
		quotes:  &fakeQuotes{quotes: map[string]valuation.Quote{}, errs: map[string]error{}},
		history: db.NewSyncHistory(conn),
	}
}

func (f *fixture) write(t *testing.T, code, name, content string) {
	t.Helper()
	dir := filepath.Join(f.root, f.cfg.DataFolder, code)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (f *fixture) reconciler(t *testing.T, continueOnError bool) (*Reconciler, string) {
	t.Helper()
	runID, err := f.history.StartRun()
	require.NoError(t, err)
	return New(f.repo, f.quotes, f.client, f.history, Options{
		ContinueOnError: continueOnError,
		RunID:           runID,
		Now:             func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) },
	}), runID
}

func (f *fixture) row(t *testing.T, table string, key []tablestore.KeyField) tablestore.Page {
	t.Helper()
	pages, err := f.client.FindByKey(context.Background(), table, key)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	return pages[0]
}

func number(t *testing.T, p tablestore.Page, name string) float64 {
	t.Helper()
	v, ok := p.Number(name)
	require.True(t, ok, "column %s", name)
	return v
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, "0700", ledgerBuy, `[
		{"id": "b1", "date": "2023-01-01", "quantity": 10, "price": 50, "fee": 1},
		{"id": "b2", "date": "2023-02-01", "quantity": 5, "price": 40, "fee": 1}
	]`)
	f.quotes.quotes["0700"] = valuation.Quote{
		CurrentPrice:           ptr(60),
		FiftyTwoWeekLow:        ptr(40),
		FiftyTwoWeekHigh:       ptr(75),
		TrailingAnnualDividend: ptr(3),
	}

	r, runID := f.reconciler(t, false)
	report, err := r.Run(ctx, []market.Config{f.cfg})
	require.NoError(t, err)

	created, updated, closed := report.Totals()
	assert.Equal(t, 2, created)
	assert.Zero(t, updated)
	assert.Zero(t, closed)
	assert.Empty(t, report.Failed())
	assert.Equal(t, []string{"0700.HK"}, f.quotes.calls)

	b1 := f.row(t, "positions", positionKey("0700", "b1"))
	date, _ := b1.Date(ColDate)
	assert.Equal(t, "2023-01-01", date)
	assert.Equal(t, 50.0, number(t, b1, ColPrice))
	assert.Equal(t, 10.0, number(t, b1, ColQuantity))
	assert.Equal(t, 0.1, number(t, b1, ColTarget))
	assert.InDelta(t, 55.0, number(t, b1, ColSellPrice), 1e-9)
	assert.Equal(t, 0.0714, number(t, b1, ColAboveAverage))
	assert.Equal(t, 60.0, number(t, b1, ColMarketPrice))
	assert.Equal(t, 600.0, number(t, b1, ColMarketValue))
	assert.Equal(t, 3.0, number(t, b1, ColDividendYear))
	assert.Equal(t, 0.045, number(t, b1, ColDividendPercent))
	assert.Equal(t, 0.054, number(t, b1, ColCostDividend))
	assert.Equal(t, 40.0, number(t, b1, ColLow))
	assert.Equal(t, 75.0, number(t, b1, ColHigh))
	assert.Equal(t, 0.0675, number(t, b1, ColLowDividend))
	assert.Equal(t, 0.036, number(t, b1, ColHighDividend))

	b2 := f.row(t, "positions", positionKey("0700", "b2"))
	assert.Equal(t, -0.1429, number(t, b2, ColAboveAverage))

	plan := f.row(t, "plans", tablestore.Key(ColCode, "0700"))
	assert.InDelta(t, 46.6667, number(t, plan, ColBasePrice), 1e-4)
	assert.Equal(t, 15.0, number(t, plan, ColQuantity))
	updatedOn, _ := plan.Date(ColUpdated)
	assert.Equal(t, "2024-03-01", updatedOn)

	rec, err := f.history.GetSyncRecord("HK_CN", "0700", "b1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, runID, rec.RunID)
	assert.Equal(t, db.ActionCreated, rec.Action)
	assert.Equal(t, b1.ID, rec.PageID)

	// Hand edits to create-only fields survive the next sync.
	_, err = f.client.UpdatePage(ctx, b2.ID, tablestore.Properties{ColTarget: tablestore.NumberProp(0.2)})
	require.NoError(t, err)

	// Sell the whole first lot.
	f.write(t, "0700", ledgerSell, `[
		{"date": "2023-06-01", "quantity": 10, "price": 60, "fee": 1, "quantityOfBuys": {"b1": 10}}
	]`)

	r, _ = f.reconciler(t, false)
	report, err = r.Run(ctx, []market.Config{f.cfg})
	require.NoError(t, err)

	created, updated, closed = report.Totals()
	assert.Zero(t, created)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, closed)

	b1 = f.row(t, "positions", positionKey("0700", "b1"))
	assert.Equal(t, 0.0, number(t, b1, ColQuantity))

	b2 = f.row(t, "positions", positionKey("0700", "b2"))
	assert.Equal(t, 0.2, number(t, b2, ColTarget))
	assert.Equal(t, 0.0, number(t, b2, ColAboveAverage))
	assert.InDelta(t, 48.0, number(t, b2, ColSellPrice), 1e-9)

	plan = f.row(t, "plans", tablestore.Key(ColCode, "0700"))
	assert.Equal(t, 40.0, number(t, plan, ColBasePrice))
	assert.Equal(t, 5.0, number(t, plan, ColQuantity))

	rec, err = f.history.GetSyncRecord("HK_CN", "0700", "b1")
	require.NoError(t, err)
	assert.Equal(t, db.ActionClosed, rec.Action)

	pages, err := f.client.QueryAll(ctx, "positions", nil)
	require.NoError(t, err)
	assert.Len(t, pages, 2, "reruns never duplicate rows")
}

func TestRun_ActivityTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.srv.CreateDatabase(t, "activities", nil)
	withActivity := f.cfg
	withActivity.ActivityTableID = "activities"

	f.write(t, "0700", ledgerBuy, `[
		{"id": "b1", "date": "2023-01-01", "quantity": 10, "price": 50, "fee": 1},
		{"id": "b2", "date": "2023-01-01", "quantity": 5, "price": 40, "fee": 2}
	]`)
	f.write(t, "0700", ledgerSell, `[
		{"date": "2023-06-01", "quantity": 3, "price": 60, "fee": 1, "quantityOfBuys": {"b1": 3}}
	]`)
	f.write(t, "0700", ledgerDividend, `[
		{"date": "2023-07-01", "quantity": 12, "dividend": 0.5, "quantityOfBuys": {"b1": 7, "b2": 5}}
	]`)

	r, _ := f.reconciler(t, false)
	report, err := r.Run(ctx, []market.Config{withActivity})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Activities())

	table, err := f.client.GetDatabase(ctx, "activities")
	require.NoError(t, err)
	require.NotNil(t, table.Properties[ColAction].Select)
	assert.Len(t, table.Properties[ColAction].Select.Options, 3)

	second := f.row(t, "activities", activityKey("0700", "2023-01-01/Buy/1"))
	assert.Equal(t, ActionBuy, second.Properties[ColAction].Select.Name)
	assert.Equal(t, 40.0, number(t, second, ColPrice))
	assert.Equal(t, 5.0, number(t, second, ColQuantity))
	assert.Equal(t, 2.0, number(t, second, ColFee))

	sell := f.row(t, "activities", activityKey("0700", "2023-06-01/Sell/0"))
	assert.Equal(t, ActionSell, sell.Properties[ColAction].Select.Name)
	date, _ := sell.Date(ColDate)
	assert.Equal(t, "2023-06-01", date)

	dividend := f.row(t, "activities", activityKey("0700", "2023-07-01/Dividend/0"))
	assert.Equal(t, ActionDividend, dividend.Properties[ColAction].Select.Name)
	assert.Equal(t, 0.5, number(t, dividend, ColPrice))
	assert.Equal(t, 12.0, number(t, dividend, ColQuantity))
	assert.Equal(t, 0.0, number(t, dividend, ColFee))

	// A corrected fee updates the same row.
	f.write(t, "0700", ledgerSell, `[
		{"date": "2023-06-01", "quantity": 3, "price": 60, "fee": 3, "quantityOfBuys": {"b1": 3}}
	]`)
	r, _ = f.reconciler(t, false)
	_, err = r.Run(ctx, []market.Config{withActivity})
	require.NoError(t, err)

	sell = f.row(t, "activities", activityKey("0700", "2023-06-01/Sell/0"))
	assert.Equal(t, 3.0, number(t, sell, ColFee))

	pages, err := f.client.QueryAll(ctx, "activities", nil)
	require.NoError(t, err)
	assert.Len(t, pages, 4, "reruns never duplicate rows")

	// Without an activity table id nothing is written there.
	r, _ = f.reconciler(t, false)
	report, err = r.Run(ctx, []market.Config{f.cfg})
	require.NoError(t, err)
	assert.Zero(t, report.Activities())
}

func TestRun_ClosedLotNeverCreatesRow(t *testing.T) {
	f := newFixture(t)
	f.cfg.PlanTableID = ""

	f.write(t, "0005", ledgerBuy, `[
		{"id": "b1", "date": "2023-01-01", "quantity": 4, "price": 50, "fee": 0},
		{"id": "b2", "date": "2023-01-02", "quantity": 3, "price": 60, "fee": 0}
	]`)
	f.write(t, "0005", ledgerSell, `[
		{"date": "2023-02-01", "quantity": 4, "price": 55, "fee": 0, "quantityOfBuys": {"b1": 4}}
	]`)

	r, _ := f.reconciler(t, false)
	report, err := r.Run(context.Background(), []market.Config{f.cfg})
	require.NoError(t, err)

	created, _, closed := report.Totals()
	assert.Equal(t, 1, created)
	assert.Zero(t, closed)

	pages, err := f.client.QueryAll(context.Background(), "positions", nil)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	id, _ := pages[0].Text(ColBuyID)
	assert.Equal(t, "b2", id)

	plans, err := f.client.QueryAll(context.Background(), "plans", nil)
	require.NoError(t, err)
	assert.Empty(t, plans, "plan table skipped without an id")
}

func TestRun_ValidationError(t *testing.T) {
	setup := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.write(t, "0005", ledgerBuy, `[{"id": "b1", "date": "2023-01-01", "quantity": 4, "price": 50, "fee": 0}]`)
		f.write(t, "0005", ledgerSell, `[
			{"date": "2023-02-01", "quantity": 2, "price": 55, "fee": 0, "quantityOfBuys": {"b9": 2}}
		]`)
		f.write(t, "0700", ledgerBuy, `[{"id": "b1", "date": "2023-01-01", "quantity": 1, "price": 300, "fee": 0}]`)
		return f
	}

	t.Run("aborts by default", func(t *testing.T) {
		f := setup(t)
		r, _ := f.reconciler(t, false)
		_, err := r.Run(context.Background(), []market.Config{f.cfg})

		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrUnknownBuy)
		var verr *ledger.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "0005", verr.Code)
		assert.Contains(t, err.Error(), "b9")

		pages, err := f.client.QueryAll(context.Background(), "positions", nil)
		require.NoError(t, err)
		assert.Empty(t, pages, "instruments after the broken one are not synced")
	})

	t.Run("continue on error", func(t *testing.T) {
		f := setup(t)
		r, runID := f.reconciler(t, true)
		report, err := r.Run(context.Background(), []market.Config{f.cfg})
		require.NoError(t, err)

		failed := report.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, "0005", failed[0].Code)
		assert.ErrorIs(t, failed[0].Err, ledger.ErrUnknownBuy)

		created, _, _ := report.Totals()
		assert.Equal(t, 1, created)

		failures, err := f.history.GetFailures(runID)
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.Equal(t, "0005", failures[0].Code)
	})
}

func TestRun_Quotes(t *testing.T) {
	t.Run("no data leaves market fields unset", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "0700", ledgerBuy, `[{"id": "b1", "date": "2023-01-01", "quantity": 1, "price": 300, "fee": 0}]`)
		f.quotes.errs["0700"] = valuation.ErrNoData

		r, _ := f.reconciler(t, false)
		_, err := r.Run(context.Background(), []market.Config{f.cfg})
		require.NoError(t, err)

		row := f.row(t, "positions", positionKey("0700", "b1"))
		assert.Equal(t, 300.0, number(t, row, ColPrice))
		_, ok := row.Number(ColMarketPrice)
		assert.False(t, ok)
		_, ok = row.Number(ColDividendPercent)
		assert.False(t, ok)
	})

	t.Run("transport errors abort", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "0700", ledgerBuy, `[{"id": "b1", "date": "2023-01-01", "quantity": 1, "price": 300, "fee": 0}]`)
		boom := &valuation.HTTPError{Symbol: "0700.HK", Status: 500, Body: "boom"}
		f.quotes.errs["0700"] = boom

		r, _ := f.reconciler(t, true)
		_, err := r.Run(context.Background(), []market.Config{f.cfg})
		var herr *valuation.HTTPError
		assert.ErrorAs(t, err, &herr)
	})
}

func TestRun_SchemaMismatch(t *testing.T) {
	f := newFixture(t)
	f.srv.CreateDatabase(t, "legacy", map[string]tablestore.PropertySchema{
		ColQuantity: {Type: tablestore.TypeRichText},
	})
	f.cfg.PositionTableID = "legacy"

	r, _ := f.reconciler(t, true)
	_, err := r.Run(context.Background(), []market.Config{f.cfg})

	var serr *tablestore.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ColQuantity, serr.Column)
	assert.Contains(t, err.Error(), "market HK_CN")
}

func TestRun_DuplicateRows(t *testing.T) {
	f := newFixture(t)
	f.write(t, "0700", ledgerBuy, `[{"id": "b1", "date": "2023-01-01", "quantity": 1, "price": 300, "fee": 0}]`)

	ctx := context.Background()
	r, _ := f.reconciler(t, false)
	_, err := r.Run(ctx, []market.Config{f.cfg})
	require.NoError(t, err)

	_, err = f.client.CreatePage(ctx, "positions", tablestore.Properties{
		ColCode:  tablestore.TextProp("0700"),
		ColBuyID: tablestore.TextProp("b1"),
	})
	require.NoError(t, err)

	r, _ = f.reconciler(t, true)
	_, err = r.Run(ctx, []market.Config{f.cfg})
	var dup *tablestore.DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestRun_ContextCanceled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "0700", ledgerBuy, `[{"id": "b1", "date": "2023-01-01", "quantity": 1, "price": 300, "fee": 0}]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(f.repo, f.quotes, DryRunStore{}, nil, Options{})
	_, err := r.Run(ctx, []market.Config{f.cfg})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t)
	f.write(t, "0700", ledgerBuy, `[{"id": "b1", "date": "2023-01-01", "quantity": 1, "price": 300, "fee": 0}]`)

	r := New(f.repo, f.quotes, DryRunStore{}, nil, Options{})
	report, err := r.Run(context.Background(), []market.Config{f.cfg})
	require.NoError(t, err)

	created, _, _ := report.Totals()
	assert.Equal(t, 1, created)

	pages, err := f.client.QueryAll(context.Background(), "positions", nil)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

const (
	ledgerBuy      = pathutil.BuyFile
	ledgerSell     = pathutil.SellFile
	ledgerDividend = pathutil.DividendFile
)
