package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
	"github.com/shunichi-ikebuchi/position-sync/pkg/position"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
	"github.com/shunichi-ikebuchi/position-sync/pkg/valuation"
)

// positionKey is the natural key of a lot row.
func positionKey(code, buyID string) []tablestore.KeyField {
	return tablestore.Key(ColCode, code, ColBuyID, buyID)
}

// positionCreate holds the fields written only when a lot row is created.
// Target% stays editable by hand afterwards.
func positionCreate(e position.Entry, cfg market.Config) tablestore.Properties {
	return tablestore.Properties{
		ColDate:   tablestore.DateProp(e.Date.String()),
		ColTarget: tablestore.NumberProp(cfg.DefaultTarget),
	}
}

// positionUpdate holds the derived fields refreshed on every sync.
// Quote fields that are nil are left untouched.
func positionUpdate(e position.Entry, q valuation.Quote, cfg market.Config) tablestore.Properties {
	props := tablestore.Properties{
		ColPrice:        tablestore.NumberProp(e.Price),
		ColQuantity:     tablestore.NumberProp(e.Quantity),
		ColAboveAverage: tablestore.NumberProp(e.AboveAverage),
	}

	if q.CurrentPrice != nil {
		props[ColMarketPrice] = tablestore.NumberProp(*q.CurrentPrice)
		value := decimal.NewFromFloat(*q.CurrentPrice).Mul(decimal.NewFromFloat(e.Quantity))
		props[ColMarketValue] = tablestore.NumberProp(value.InexactFloat64())
	}
	if q.FiftyTwoWeekLow != nil {
		props[ColLow] = tablestore.NumberProp(*q.FiftyTwoWeekLow)
	}
	if q.FiftyTwoWeekHigh != nil {
		props[ColHigh] = tablestore.NumberProp(*q.FiftyTwoWeekHigh)
	}

	if q.TrailingAnnualDividend == nil {
		return props
	}
	annual := *q.TrailingAnnualDividend
	props[ColDividendYear] = tablestore.NumberProp(annual)

	setYield(props, ColCostDividend, annual, &e.Price, cfg)
	setYield(props, ColDividendPercent, annual, q.CurrentPrice, cfg)
	setYield(props, ColLowDividend, annual, q.FiftyTwoWeekLow, cfg)
	setYield(props, ColHighDividend, annual, q.FiftyTwoWeekHigh, cfg)

	return props
}

func setYield(props tablestore.Properties, column string, annual float64, price *float64, cfg market.Config) {
	if price == nil {
		return
	}
	if y := position.DividendYield(annual, *price, cfg); y != nil {
		props[column] = tablestore.NumberProp(*y)
	}
}

// closedUpdate marks the row of a fully sold lot.
func closedUpdate() tablestore.Properties {
	return tablestore.Properties{
		ColQuantity: tablestore.NumberProp(0),
	}
}

// planUpdate holds the fields of the plan row of an instrument.
func planUpdate(s position.Summary, updated string) tablestore.Properties {
	return tablestore.Properties{
		ColBasePrice: tablestore.NumberProp(s.AveragePrice),
		ColQuantity:  tablestore.NumberProp(s.TotalQuantity),
		ColUpdated:   tablestore.DateProp(updated),
	}
}
