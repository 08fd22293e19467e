package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
)

func day(m time.Month, d int) ledger.Date {
	return ledger.NewDate(2023, m, d)
}

func TestReconstruct_SellThenDividend(t *testing.T) {
	t.Parallel()

	buys := []ledger.Buy{{ID: "b1", Date: day(time.January, 1), Quantity: 10, Price: 100, Fee: 2}}
	sells := []ledger.Sell{{Date: day(time.March, 1), Quantity: 4, Price: 110, QuantityOfBuys: ledger.Allocation{"b1": 4}}}
	dividends := []ledger.Dividend{{Date: day(time.May, 1), Quantity: 6, Dividend: 2, QuantityOfBuys: ledger.Allocation{"b1": 6}}}

	lots := Reconstruct(buys, sells, dividends, market.Config{TaxRate: 0})

	require.Len(t, lots, 1)
	assert.Equal(t, "b1", lots[0].ID)
	assert.Equal(t, 6.0, lots[0].Quantity)
	assert.Equal(t, 98.0, lots[0].Price)
	assert.Equal(t, 2.0, lots[0].Fee)
	assert.Equal(t, day(time.January, 1), lots[0].Date)
	assert.Equal(t, 10.0, lots[0].OriginalQuantity)
	assert.Equal(t, 100.0, lots[0].OriginalPrice)

	// The buy record itself is untouched.
	assert.Equal(t, 10.0, buys[0].Quantity)
	assert.Equal(t, 100.0, buys[0].Price)
}

func TestReconstruct_EndToEndScenario(t *testing.T) {
	t.Parallel()

	stock := &ledger.Stock{
		Code:  "X",
		Buys:  []ledger.Buy{{ID: "b1", Date: day(time.January, 1), Quantity: 10, Price: 50, Fee: 1}},
		Sells: []ledger.Sell{{Date: day(time.June, 1), Quantity: 3, Price: 60, Fee: 1, QuantityOfBuys: ledger.Allocation{"b1": 3}}},
	}

	book := Build(stock, market.Config{})

	require.Len(t, book.Entries, 1)
	assert.Equal(t, "b1", book.Entries[0].ID)
	assert.Equal(t, 7.0, book.Entries[0].Quantity)
	assert.Equal(t, 50.0, book.Entries[0].Price)
	assert.Equal(t, 0.0, book.Entries[0].AboveAverage)
	assert.Equal(t, 50.0, book.Summary.AveragePrice)
	assert.Equal(t, 7.0, book.Summary.TotalQuantity)
	assert.Equal(t, 1, book.Summary.OpenLots)
}

func TestReconstruct_TaxRateAndMultipleEvents(t *testing.T) {
	t.Parallel()

	buys := []ledger.Buy{
		{ID: "b1", Date: day(time.January, 1), Quantity: 100, Price: 10},
		{ID: "b2", Date: day(time.February, 1), Quantity: 50, Price: 12},
	}
	sells := []ledger.Sell{
		{Date: day(time.March, 1), Quantity: 30, QuantityOfBuys: ledger.Allocation{"b1": 20, "b2": 10}},
		{Date: day(time.April, 1), Quantity: 10, QuantityOfBuys: ledger.Allocation{"b1": 10}},
	}
	dividends := []ledger.Dividend{
		{Date: day(time.June, 1), Quantity: 110, Dividend: 0.5, QuantityOfBuys: ledger.Allocation{"b1": 70, "b2": 40}},
		{Date: day(time.December, 1), Quantity: 70, Dividend: 0.3, QuantityOfBuys: ledger.Allocation{"b1": 70}},
	}

	lots := Reconstruct(buys, sells, dividends, market.Config{TaxRate: 0.1})

	require.Len(t, lots, 2)
	assert.Equal(t, 70.0, lots[0].Quantity)
	assert.Equal(t, 9.28, lots[0].Price) // 10 - 0.45 - 0.27
	assert.Equal(t, 40.0, lots[1].Quantity)
	assert.Equal(t, 11.55, lots[1].Price) // 12 - 0.45
}

func TestReconstruct_OrderIndependent(t *testing.T) {
	t.Parallel()

	buys := []ledger.Buy{{ID: "b1", Date: day(time.January, 1), Quantity: 1, Price: 1}}
	sells := []ledger.Sell{
		{Date: day(time.March, 1), Quantity: 0.1, QuantityOfBuys: ledger.Allocation{"b1": 0.1}},
		{Date: day(time.April, 1), Quantity: 0.2, QuantityOfBuys: ledger.Allocation{"b1": 0.2}},
		{Date: day(time.May, 1), Quantity: 0.3, QuantityOfBuys: ledger.Allocation{"b1": 0.3}},
	}
	dividends := []ledger.Dividend{
		{Date: day(time.June, 1), Quantity: 1, Dividend: 0.01, QuantityOfBuys: ledger.Allocation{"b1": 1}},
		{Date: day(time.July, 1), Quantity: 1, Dividend: 0.07, QuantityOfBuys: ledger.Allocation{"b1": 1}},
	}

	forward := Reconstruct(buys, sells, dividends, market.Config{TaxRate: 0.2})

	reversedSells := []ledger.Sell{sells[2], sells[0], sells[1]}
	reversedDividends := []ledger.Dividend{dividends[1], dividends[0]}
	backward := Reconstruct(buys, reversedSells, reversedDividends, market.Config{TaxRate: 0.2})

	assert.Equal(t, forward, backward)
	assert.Equal(t, 0.4, forward[0].Quantity)
	assert.Equal(t, 0.936, forward[0].Price)
}

func TestReconstruct_NegativeCostBasisIsKept(t *testing.T) {
	t.Parallel()

	buys := []ledger.Buy{{ID: "b1", Date: day(time.January, 1), Quantity: 1, Price: 1}}
	dividends := []ledger.Dividend{{Date: day(time.June, 1), Quantity: 1, Dividend: 1.5, QuantityOfBuys: ledger.Allocation{"b1": 1}}}

	lots := Reconstruct(buys, nil, dividends, market.Config{})
	assert.Equal(t, -0.5, lots[0].Price)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lots  []Lot
		total float64
		avg   float64
		open  int
	}{
		{"empty", nil, 0, 0, 0},
		{"all closed", []Lot{{ID: "a", Quantity: 0, Price: 10}}, 0, 0, 0},
		{"weighted", []Lot{{ID: "a", Quantity: 10, Price: 10}, {ID: "b", Quantity: 30, Price: 14}}, 40, 13, 2},
		{"closed excluded", []Lot{{ID: "a", Quantity: 5, Price: 8}, {ID: "b", Quantity: 0, Price: 1000}}, 5, 8, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Summarize(tt.lots)
			assert.Equal(t, tt.total, got.TotalQuantity)
			assert.InDelta(t, tt.avg, got.AveragePrice, 1e-12)
			assert.Equal(t, tt.open, got.OpenLots)
		})
	}
}

func TestDistanceFromAverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		price   float64
		average float64
		want    float64
	}{
		{"zero average", 10, 0, 0},
		{"equal", 50, 50, 0},
		{"above", 55, 50, 0.1},
		{"below", 45, 50, -0.1},
		{"rounded", 10, 3, 2.3333},
		{"rounded half", 1.00005, 1, 0.0001},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DistanceFromAverage(tt.price, tt.average))
		})
	}
}

func TestDividendYield(t *testing.T) {
	t.Parallel()

	assert.Nil(t, DividendYield(1, 0, market.Config{}))

	y := DividendYield(2, 40, market.Config{})
	require.NotNil(t, y)
	assert.Equal(t, 0.05, *y)

	y = DividendYield(1, 3, market.Config{TaxRate: 0.1})
	require.NotNil(t, y)
	assert.Equal(t, 0.3, *y)
}

func TestBook_OpenAndClosedEntries(t *testing.T) {
	t.Parallel()

	stock := &ledger.Stock{
		Code: "X",
		Buys: []ledger.Buy{
			{ID: "b1", Date: day(time.January, 1), Quantity: 10, Price: 40},
			{ID: "b2", Date: day(time.February, 1), Quantity: 10, Price: 60},
		},
		Sells: []ledger.Sell{{Date: day(time.March, 1), Quantity: 10, QuantityOfBuys: ledger.Allocation{"b1": 10}}},
	}

	book := Build(stock, market.Config{})

	open := book.OpenEntries()
	require.Len(t, open, 1)
	assert.Equal(t, "b2", open[0].ID)
	assert.Equal(t, 0.0, open[0].AboveAverage)

	closed := book.ClosedEntries()
	require.Len(t, closed, 1)
	assert.Equal(t, "b1", closed[0].ID)
	assert.Equal(t, -0.3333, closed[0].AboveAverage)
	assert.Equal(t, 60.0, book.Summary.AveragePrice)
}
