// Package market provides per-market configuration: remote table ids,
// currency display, dividend tax rate and ledger folder.
package market

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of one market. It is built once at startup
// and passed by value into every stage of a sync.
type Config struct {
	Name            string  `yaml:"name"`
	PositionTableID string  `yaml:"positionTableId"`
	PlanTableID     string  `yaml:"planTableId"`
	ActivityTableID string  `yaml:"activityTableId"`
	CurrencyFormat  string  `yaml:"currencyFormat"`
	Currency        string  `yaml:"currency"`
	TaxRate         float64 `yaml:"taxRate"`
	DataFolder      string  `yaml:"dataFolder"`
	TickerSuffix    string  `yaml:"tickerSuffix"`
	DefaultTarget   float64 `yaml:"defaultTarget"`
}

// File represents the markets YAML file.
type File struct {
	Markets []Config `yaml:"markets"`
}

// currencyByFormat maps number display formats of the remote store to ISO 4217 codes.
var currencyByFormat = map[string]string{
	"yuan":             "CNY",
	"hong_kong_dollar": "HKD",
	"dollar":           "USD",
	"euro":             "EUR",
	"pound":            "GBP",
	"yen":              "JPY",
	"singapore_dollar": "SGD",
	"won":              "KRW",
}

// Defaults returns the built-in market list.
func Defaults() []Config {
	return []Config{
		{
			Name:            "HK_CN",
			PositionTableID: "1a553f8b429a8028ab38e528860503d9",
			ActivityTableID: "1a553f8b429a806ca7e4c37c76a820dd",
			CurrencyFormat:  "hong_kong_dollar",
			Currency:        "HKD",
			TaxRate:         0,
			DataFolder:      "hk_cn",
			TickerSuffix:    ".HK",
			DefaultTarget:   0.1,
		},
	}
}

// Load reads market configurations from a YAML file.
// An empty path returns Defaults.
func Load(path string) ([]Config, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markets file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	markets := make([]Config, 0, len(file.Markets))
	for _, m := range file.Markets {
		m = m.withDefaults()
		if err := m.Validate(); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}

	return markets, nil
}

// withDefaults fills the fields that can be derived from others.
func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = currencyByFormat[c.CurrencyFormat]
	}
	if c.DataFolder == "" {
		c.DataFolder = strings.ToLower(c.Name)
	}
	return c
}

// Validate checks a market configuration for missing or out of range values.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("market: missing name")
	}
	if c.PositionTableID == "" {
		return fmt.Errorf("market %s: missing positionTableId", c.Name)
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("market %s: taxRate %v out of range [0, 1)", c.Name, c.TaxRate)
	}
	return nil
}

// Filter returns the markets whose name is in names. No names returns all markets.
func Filter(markets []Config, names ...string) ([]Config, error) {
	if len(names) == 0 {
		return markets, nil
	}

	byName := make(map[string]Config, len(markets))
	for _, m := range markets {
		byName[m.Name] = m
	}

	result := make([]Config, 0, len(names))
	for _, name := range names {
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown market %q", name)
		}
		result = append(result, m)
	}
	return result, nil
}

// NetOfTax returns the part of a dividend amount kept after the market's tax.
func (c Config) NetOfTax(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(c.TaxRate)))
}
