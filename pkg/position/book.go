package position

import (
	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
)

// Entry is a lot together with its distance from the instrument average.
type Entry struct {
	Lot
	AboveAverage float64
}

// Book is the reconstructed position of one instrument.
type Book struct {
	Code    string
	Entries []Entry
	Summary Summary
}

// Build reconstructs the lots of a stock and computes its summary.
func Build(stock *ledger.Stock, cfg market.Config) Book {
	lots := Reconstruct(stock.Buys, stock.Sells, stock.Dividends, cfg)
	summary := Summarize(lots)

	entries := make([]Entry, len(lots))
	for i, l := range lots {
		entries[i] = Entry{
			Lot:          l,
			AboveAverage: DistanceFromAverage(l.Price, summary.AveragePrice),
		}
	}

	return Book{
		Code:    stock.Code,
		Entries: entries,
		Summary: summary,
	}
}

// OpenEntries returns the entries that still hold a quantity.
func (b Book) OpenEntries() []Entry {
	var open []Entry
	for _, e := range b.Entries {
		if e.Open() {
			open = append(open, e)
		}
	}
	return open
}

// ClosedEntries returns the fully sold entries.
func (b Book) ClosedEntries() []Entry {
	var closed []Entry
	for _, e := range b.Entries {
		if !e.Open() {
			closed = append(closed, e)
		}
	}
	return closed
}
