// Package position reconstructs the open lots of an instrument from its
// validated ledger records and computes aggregate position metrics.
//
// All arithmetic is done on decimals, so results are exact and do not depend
// on the order in which sells and dividends are supplied. The package performs
// no I/O and expects records that already passed ledger validation.
package position

import (
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
)

// Lot is the current state of one buy after sells and dividends.
// It carries the buy's id, date and fee unchanged.
type Lot struct {
	ID       string
	Date     ledger.Date
	Quantity float64
	Price    float64
	Fee      float64

	// OriginalQuantity and OriginalPrice are the values of the buy record.
	OriginalQuantity float64
	OriginalPrice    float64
}

// Open reports whether the lot still holds a quantity.
func (l Lot) Open() bool {
	return l.Quantity != 0
}

// Reconstruct returns one lot per buy, in buy order. The quantity of each
// lot is reduced by every sell allocated to it and the price by the net of
// tax amount of every dividend allocated to it.
func Reconstruct(buys []ledger.Buy, sells []ledger.Sell, dividends []ledger.Dividend, cfg market.Config) []Lot {
	sold := make(map[string]decimal.Decimal)
	for _, s := range sells {
		for id, q := range s.QuantityOfBuys {
			sold[id] = sold[id].Add(decimal.NewFromFloat(q))
		}
	}

	paid := make(map[string]decimal.Decimal)
	for _, d := range dividends {
		net := cfg.NetOfTax(decimal.NewFromFloat(d.Dividend))
		for id := range d.QuantityOfBuys {
			paid[id] = paid[id].Add(net)
		}
	}

	lots := make([]Lot, 0, len(buys))
	for _, b := range buys {
		quantity := decimal.NewFromFloat(b.Quantity).Sub(sold[b.ID])
		price := decimal.NewFromFloat(b.Price).Sub(paid[b.ID])

		lots = append(lots, Lot{
			ID:               b.ID,
			Date:             b.Date,
			Quantity:         quantity.InexactFloat64(),
			Price:            price.InexactFloat64(),
			Fee:              b.Fee,
			OriginalQuantity: b.Quantity,
			OriginalPrice:    b.Price,
		})
	}

	return lots
}

// Summary aggregates the open lots of an instrument.
type Summary struct {
	TotalQuantity float64
	AveragePrice  float64
	OpenLots      int
}

// Summarize computes the total quantity and the volume weighted average
// price of the open lots. AveragePrice is 0 when nothing is held.
func Summarize(lots []Lot) Summary {
	total := decimal.Zero
	cost := decimal.Zero
	open := 0

	for _, l := range lots {
		if !l.Open() {
			continue
		}
		q := decimal.NewFromFloat(l.Quantity)
		total = total.Add(q)
		cost = cost.Add(q.Mul(decimal.NewFromFloat(l.Price)))
		open++
	}

	summary := Summary{TotalQuantity: total.InexactFloat64(), OpenLots: open}
	if !total.IsZero() {
		summary.AveragePrice = cost.DivRound(total, 16).InexactFloat64()
	}
	return summary
}

// DistanceFromAverage returns price/average - 1 rounded to 4 decimals,
// or 0 when average is 0.
func DistanceFromAverage(price, average float64) float64 {
	if average == 0 {
		return 0
	}
	p := decimal.NewFromFloat(price)
	a := decimal.NewFromFloat(average)
	return p.DivRound(a, 16).Sub(decimal.NewFromInt(1)).Round(4).InexactFloat64()
}

// DividendYield returns annual/price net of the market tax, rounded to
// 4 decimals. It returns nil when price is 0.
func DividendYield(annual, price float64, cfg market.Config) *float64 {
	if price == 0 {
		return nil
	}
	gross := decimal.NewFromFloat(annual).DivRound(decimal.NewFromFloat(price), 16)
	y := cfg.NetOfTax(gross).Round(4).InexactFloat64()
	return &y
}
