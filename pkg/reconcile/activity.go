package reconcile

import (
	"fmt"

	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

// activity is one ledger event as shown in the activity table.
// For dividends Price is the amount per unit.
type activity struct {
	Event    string
	Date     ledger.Date
	Action   string
	Price    float64
	Quantity float64
	Fee      float64
}

// activities lists the events of a stock: buys, then sells, then dividends,
// each in ledger order. Event is "DATE/ACTION/N", N counting the earlier
// events with the same date and action.
func activities(stock *ledger.Stock) []activity {
	seen := make(map[string]int)
	var result []activity
	add := func(a activity) {
		prefix := a.Date.String() + "/" + a.Action
		a.Event = fmt.Sprintf("%s/%d", prefix, seen[prefix])
		seen[prefix]++
		result = append(result, a)
	}

	for _, b := range stock.Buys {
		add(activity{Date: b.Date, Action: ActionBuy, Price: b.Price, Quantity: b.Quantity, Fee: b.Fee})
	}
	for _, s := range stock.Sells {
		add(activity{Date: s.Date, Action: ActionSell, Price: s.Price, Quantity: s.Quantity, Fee: s.Fee})
	}
	for _, d := range stock.Dividends {
		add(activity{Date: d.Date, Action: ActionDividend, Price: d.Dividend, Quantity: d.Quantity})
	}
	return result
}

func activityKey(code, event string) []tablestore.KeyField {
	return tablestore.Key(ColCode, code, ColEvent, event)
}

// activityUpdate holds every field of an activity row, so ledger
// corrections reach the table on the next sync.
func activityUpdate(a activity) tablestore.Properties {
	return tablestore.Properties{
		ColDate:     tablestore.DateProp(a.Date.String()),
		ColAction:   tablestore.SelectProp(a.Action),
		ColPrice:    tablestore.NumberProp(a.Price),
		ColQuantity: tablestore.NumberProp(a.Quantity),
		ColFee:      tablestore.NumberProp(a.Fee),
	}
}
