// Package report renders reconstructed positions for the terminal, without
// talking to the remote tables.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/position-sync/pkg/ledger"
	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
	"github.com/shunichi-ikebuchi/position-sync/pkg/position"
)

// Section is the report of one market.
type Section struct {
	Market market.Config
	Books  []position.Book
}

// Build loads and rebuilds every instrument of the given markets.
// Codes restricts the instruments when not empty; a code found in none of
// the markets is an error.
func Build(repo ledger.Repository, markets []market.Config, codes ...string) ([]Section, error) {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	found := make(map[string]bool, len(codes))

	sections := make([]Section, 0, len(markets))
	for _, cfg := range markets {
		all, err := repo.ListCodes(cfg)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", cfg.Name, err)
		}

		section := Section{Market: cfg}
		for _, code := range all {
			if len(want) > 0 && !want[code] {
				continue
			}
			found[code] = true
			stock, err := repo.LoadStock(cfg, code)
			if err != nil {
				return nil, fmt.Errorf("market %s: %w", cfg.Name, err)
			}
			section.Books = append(section.Books, position.Build(stock, cfg))
		}
		sections = append(sections, section)
	}

	var unknown []string
	for _, c := range codes {
		if !found[c] {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("no instrument %s in markets %s", strings.Join(unknown, ", "), marketNames(markets))
	}
	return sections, nil
}

func marketNames(markets []market.Config) string {
	names := make([]string, len(markets))
	for i, m := range markets {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

// FormatMoney formats amount in an ISO 4217 currency, such as "HK$1,234.50".
// Unknown currencies fall back to a plain number followed by the code.
func FormatMoney(amount float64, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return strings.TrimSpace(fmt.Sprintf("%.2f %s", amount, currency))
	}

	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := decimal.NewFromFloat(amount).Mul(factor).Round(0).IntPart()
	return money.New(minor, currency).Display()
}

// FormatPercent formats a ratio as a percentage with two decimals.
func FormatPercent(ratio float64) string {
	return decimal.NewFromFloat(ratio).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// Markdown writes the sections as markdown tables.
func Markdown(w io.Writer, sections []Section) error {
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "# %s (%s)\n\n", s.Market.Name, s.Market.Currency)
		if len(s.Books) == 0 {
			b.WriteString("No instruments.\n\n")
			continue
		}
		for _, book := range s.Books {
			fmt.Fprintf(&b, "## %s\n\n", book.Code)
			fmt.Fprintf(&b, "Quantity %s, average price %s, %d open lots.\n\n",
				formatQuantity(book.Summary.TotalQuantity),
				FormatMoney(book.Summary.AveragePrice, s.Market.Currency),
				book.Summary.OpenLots)

			b.WriteString("| Lot | Date | Quantity | Price | >Avg% | Bought | At |\n")
			b.WriteString("|:---|:---|---:|---:|---:|---:|---:|\n")
			for _, e := range book.OpenEntries() {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n", lotColumns(e, s.Market.Currency)...)
			}
			if closed := len(book.ClosedEntries()); closed > 0 {
				fmt.Fprintf(&b, "\n%d closed lots.\n", closed)
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Text writes the sections as aligned plain-text tables.
func Text(w io.Writer, sections []Section) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, s := range sections {
		fmt.Fprintf(tw, "%s (%s)\t\n", s.Market.Name, s.Market.Currency)
		for _, book := range s.Books {
			fmt.Fprintf(tw, "%s\tquantity %s\taverage %s\t\n",
				book.Code,
				formatQuantity(book.Summary.TotalQuantity),
				FormatMoney(book.Summary.AveragePrice, s.Market.Currency))
			for _, e := range book.OpenEntries() {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", lotColumns(e, s.Market.Currency)...)
			}
		}
		fmt.Fprintln(tw, "\t")
	}
	return tw.Flush()
}

// Pretty renders the markdown report for a terminal.
func Pretty(w io.Writer, sections []Section, style string) error {
	var b strings.Builder
	if err := Markdown(&b, sections); err != nil {
		return err
	}
	if style == "" {
		style = "auto"
	}
	out, err := glamour.Render(b.String(), style)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func lotColumns(e position.Entry, currency string) []any {
	return []any{
		e.ID,
		e.Date.String(),
		formatQuantity(e.Quantity),
		FormatMoney(e.Price, currency),
		FormatPercent(e.AboveAverage),
		formatQuantity(e.OriginalQuantity),
		FormatMoney(e.OriginalPrice, currency),
	}
}

func formatQuantity(q float64) string {
	return decimal.NewFromFloat(q).String()
}
