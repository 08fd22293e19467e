package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
)

// Fields every record of a kind must carry. A buy id is optional.
var (
	buyFields      = []string{"date", "quantity", "price", "fee"}
	sellFields     = []string{"date", "quantity", "price", "fee", "quantityOfBuys"}
	dividendFields = []string{"date", "quantity", "dividend", "quantityOfBuys"}
)

// rawRecord is an undecoded ledger record, kept for error messages.
type rawRecord json.RawMessage

func (r rawRecord) String() string { return string(r) }

// DecodeBuys parses a JSON array of buy records. Ids are left as found.
func DecodeBuys(r io.Reader) ([]Buy, error) {
	var buys []Buy
	if err := decodeArray(r, buyFields, &buys); err != nil {
		return nil, err
	}
	return buys, nil
}

// DecodeSells parses a JSON array of sell records.
func DecodeSells(r io.Reader) ([]Sell, error) {
	var sells []Sell
	if err := decodeArray(r, sellFields, &sells); err != nil {
		return nil, err
	}
	return sells, nil
}

// DecodeDividends parses a JSON array of dividend records.
func DecodeDividends(r io.Reader) ([]Dividend, error) {
	var dividends []Dividend
	if err := decodeArray(r, dividendFields, &dividends); err != nil {
		return nil, err
	}
	return dividends, nil
}

// decodeArray strictly decodes a JSON array into v after checking that
// every element carries the required fields. A missing field is reported
// as a *ValidationError without instrument code.
func decodeArray(r io.Reader, required []string, v any) error {
	var elems []json.RawMessage
	if err := json.NewDecoder(r).Decode(&elems); err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}

	for i, elem := range elems {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(elem, &fields); err != nil {
			return fmt.Errorf("failed to decode record %d: %w", i, err)
		}
		for _, name := range required {
			if value, ok := fields[name]; !ok || string(value) == "null" {
				return &ValidationError{Kind: ErrMissingField, Record: rawRecord(elem),
					Detail: fmt.Sprintf("record %d has no %q", i, name)}
			}
		}
	}

	all, err := json.Marshal(elems)
	if err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(all))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}
	return nil
}

// NormalizeBuys returns a copy of buys where every buy without an id
// takes its trade date as id.
func NormalizeBuys(buys []Buy) []Buy {
	result := make([]Buy, len(buys))
	for i, b := range buys {
		if b.ID == "" {
			b.ID = b.Date.String()
		}
		result[i] = b
	}
	return result
}

// ValidateBuys checks that buys are dated, buy ids unique and quantities
// positive. Buys must be normalized first.
func ValidateBuys(code string, buys []Buy) error {
	seen := make(map[string]bool, len(buys))
	for _, b := range buys {
		if b.Date.IsZero() {
			return &ValidationError{Code: code, Kind: ErrMissingField, Record: b, BuyID: b.ID, Detail: "no trade date"}
		}
		if b.Quantity <= 0 {
			return &ValidationError{Code: code, Kind: ErrInvalidQuantity, Record: b, BuyID: b.ID, Detail: "quantity must be positive"}
		}
		if seen[b.ID] {
			return &ValidationError{Code: code, Kind: ErrDuplicateBuy, Record: b, BuyID: b.ID,
				Detail: "give same-day buys explicit ids"}
		}
		seen[b.ID] = true
	}
	return nil
}

// ValidateSells checks every sell against the loaded buys: the stated
// quantity equals the allocations, every allocated id exists, and no lot
// balance goes below zero when sells are applied in trade-date order.
func ValidateSells(code string, buys []Buy, sells []Sell) error {
	balance := make(map[string]decimal.Decimal, len(buys))
	for _, b := range buys {
		balance[b.ID] = decimal.NewFromFloat(b.Quantity)
	}

	for _, s := range sells {
		if err := checkAllocation(code, s, s.Date, s.Quantity, s.QuantityOfBuys, balance); err != nil {
			return err
		}
	}

	ordered := make([]Sell, len(sells))
	copy(ordered, sells)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date.Time)
	})

	for _, s := range ordered {
		for _, id := range s.QuantityOfBuys.IDs() {
			remaining := balance[id].Sub(decimal.NewFromFloat(s.QuantityOfBuys[id]))
			if remaining.IsNegative() {
				return &ValidationError{Code: code, Kind: ErrNegativeBalance, Record: s, BuyID: id,
					Detail: fmt.Sprintf("balance would be %s", remaining)}
			}
			balance[id] = remaining
		}
	}

	return nil
}

// ValidateDividends checks that every dividend's quantity equals its
// allocations and that every allocated id exists.
func ValidateDividends(code string, buys []Buy, dividends []Dividend) error {
	known := make(map[string]decimal.Decimal, len(buys))
	for _, b := range buys {
		known[b.ID] = decimal.NewFromFloat(b.Quantity)
	}

	for _, d := range dividends {
		if err := checkAllocation(code, d, d.Date, d.Quantity, d.QuantityOfBuys, known); err != nil {
			return err
		}
	}
	return nil
}

func checkAllocation(code string, record fmt.Stringer, date Date, quantity float64, alloc Allocation, known map[string]decimal.Decimal) error {
	if date.IsZero() {
		return &ValidationError{Code: code, Kind: ErrMissingField, Record: record, Detail: "no date"}
	}
	if quantity <= 0 {
		return &ValidationError{Code: code, Kind: ErrInvalidQuantity, Record: record, Detail: "quantity must be positive"}
	}

	sum := decimal.Zero
	for _, id := range alloc.IDs() {
		q := alloc[id]
		if q <= 0 {
			return &ValidationError{Code: code, Kind: ErrInvalidQuantity, Record: record, BuyID: id,
				Detail: "allocated quantity must be positive"}
		}
		if _, ok := known[id]; !ok {
			return &ValidationError{Code: code, Kind: ErrUnknownBuy, Record: record, BuyID: id}
		}
		sum = sum.Add(decimal.NewFromFloat(q))
	}

	if !sum.Equal(decimal.NewFromFloat(quantity)) {
		return &ValidationError{Code: code, Kind: ErrQuantityMismatch, Record: record,
			Detail: fmt.Sprintf("quantity %v, allocated %s", quantity, sum)}
	}
	return nil
}
