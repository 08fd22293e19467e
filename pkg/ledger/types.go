// Package ledger reads and validates per-instrument buy, sell and dividend records.
package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the ISO layout used by ledger files and default buy ids.
const DateLayout = "2006-01-02"

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the date of the given day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Buy is a single purchase lot.
type Buy struct {
	ID       string  `json:"id,omitempty"`
	Date     Date    `json:"date"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
}

func (b Buy) String() string {
	return fmt.Sprintf("buy id=%s date=%s quantity=%v price=%v fee=%v", b.ID, b.Date, b.Quantity, b.Price, b.Fee)
}

// Allocation maps a buy id to the quantity attributed to that lot.
type Allocation map[string]float64

// IDs returns the allocated buy ids, sorted.
func (a Allocation) IDs() []string {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a Allocation) String() string {
	parts := make([]string, 0, len(a))
	for _, id := range a.IDs() {
		parts = append(parts, fmt.Sprintf("%s:%v", id, a[id]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Sell is a sale attributed to one or more lots.
type Sell struct {
	Date           Date       `json:"date"`
	Quantity       float64    `json:"quantity"`
	Price          float64    `json:"price"`
	Fee            float64    `json:"fee"`
	QuantityOfBuys Allocation `json:"quantityOfBuys"`
}

func (s Sell) String() string {
	return fmt.Sprintf("sell date=%s quantity=%v price=%v fee=%v quantityOfBuys=%s", s.Date, s.Quantity, s.Price, s.Fee, s.QuantityOfBuys)
}

// Dividend is a per-unit dividend paid to one or more lots.
type Dividend struct {
	Date           Date       `json:"date"`
	Quantity       float64    `json:"quantity"`
	Dividend       float64    `json:"dividend"`
	QuantityOfBuys Allocation `json:"quantityOfBuys"`
}

func (d Dividend) String() string {
	return fmt.Sprintf("dividend date=%s quantity=%v dividend=%v quantityOfBuys=%s", d.Date, d.Quantity, d.Dividend, d.QuantityOfBuys)
}

// Stock gathers every ledger record of one instrument.
type Stock struct {
	Code      string
	Buys      []Buy
	Sells     []Sell
	Dividends []Dividend
}
