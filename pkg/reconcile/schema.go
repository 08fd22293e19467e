package reconcile

import (
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

// Table columns.
const (
	ColCode             = "Code"
	ColBuyID            = "BuyId"
	ColDate             = "Date"
	ColPrice            = "Price"
	ColQuantity         = "Quantity"
	ColMarketPrice      = "Market Price"
	ColMarketValue      = "Market Value"
	ColAboveAverage     = ">Avg%"
	ColTarget           = "Target%"
	ColSellPrice        = "Sell Price"
	ColDividendYear     = "Dividend/Y"
	ColDividendPercent  = "Dividend%"
	ColCostDividend     = "Cost Dividend%"
	ColLow              = "Low"
	ColHigh             = "High"
	ColLowDividend      = "Low Dividend%"
	ColHighDividend     = "High Dividend%"
	ColBasePrice        = "Base Price"
	ColUpdated          = "Updated"
	ColEvent            = "Event"
	ColAction           = "Action"
	ColFee              = "Fee"
	SellPriceExpression = `prop("Price") * (1 + prop("Target%"))`
)

// Activity actions, the options of the Action column.
const (
	ActionBuy      = "Buy"
	ActionSell     = "Sell"
	ActionDividend = "Dividend"
)

// PositionSchema returns the columns the position table must have.
// Prices are shown in the market currency.
func PositionSchema(cfg market.Config) tablestore.Schema {
	price := tablestore.NumberColumn{Format: cfg.CurrencyFormat}
	percent := tablestore.NumberColumn{Format: tablestore.FormatPercent}

	return tablestore.Schema{
		ColCode:            tablestore.TextColumn{},
		ColBuyID:           tablestore.TextColumn{},
		ColDate:            tablestore.DateColumn{},
		ColPrice:           price,
		ColQuantity:        tablestore.NumberColumn{},
		ColMarketPrice:     price,
		ColMarketValue:     price,
		ColAboveAverage:    percent,
		ColTarget:          percent,
		ColSellPrice:       tablestore.FormulaColumn{Expression: SellPriceExpression},
		ColDividendYear:    price,
		ColDividendPercent: percent,
		ColCostDividend:    percent,
		ColLow:             price,
		ColHigh:            price,
		ColLowDividend:     percent,
		ColHighDividend:    percent,
	}
}

// PlanSchema returns the columns the plan table must have.
func PlanSchema(cfg market.Config) tablestore.Schema {
	return tablestore.Schema{
		ColCode:      tablestore.TextColumn{},
		ColBasePrice: tablestore.NumberColumn{Format: cfg.CurrencyFormat},
		ColQuantity:  tablestore.NumberColumn{},
		ColUpdated:   tablestore.DateColumn{},
	}
}

// ActivitySchema returns the columns of the activity table, which lists
// every ledger event of the market.
func ActivitySchema(cfg market.Config) tablestore.Schema {
	price := tablestore.NumberColumn{Format: cfg.CurrencyFormat}

	return tablestore.Schema{
		ColCode:   tablestore.TextColumn{},
		ColEvent:  tablestore.TextColumn{},
		ColDate:   tablestore.DateColumn{},
		ColAction: tablestore.SelectColumn{Options: []tablestore.Option{
			{Name: ActionBuy, Color: "green"},
			{Name: ActionSell, Color: "red"},
			{Name: ActionDividend, Color: "blue"},
		}},
		ColPrice:    price,
		ColQuantity: tablestore.NumberColumn{},
		ColFee:      price,
	}
}
