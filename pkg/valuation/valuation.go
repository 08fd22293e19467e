// Package valuation fetches market prices, 52 week ranges and trailing
// dividends for instruments.
package valuation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
)

// ErrNoData is returned when the provider knows nothing about a symbol.
var ErrNoData = errors.New("valuation: no data")

// Quote holds the market data of one instrument. Nil fields are unknown and
// must not overwrite remote values.
type Quote struct {
	Symbol                 string
	CurrentPrice           *float64
	FiftyTwoWeekLow        *float64
	FiftyTwoWeekHigh       *float64
	TrailingAnnualDividend *float64
}

// Provider returns a quote for an instrument code of a market.
type Provider interface {
	Quote(ctx context.Context, code string, cfg market.Config) (Quote, error)
}

// HTTPError is returned when the provider answers with a non 200 status.
type HTTPError struct {
	Symbol string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("valuation: %s: http %d: %s", e.Symbol, e.Status, e.Body)
}

// Symbol returns the provider symbol of an instrument code.
func Symbol(code string, cfg market.Config) string {
	return code + cfg.TickerSuffix
}
