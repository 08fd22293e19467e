// Package config provides configuration management for position-sync.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Notion NotionConfig
	Quotes QuoteConfig
	Ledger LedgerConfig
}

// NotionConfig represents the remote database API configuration.
type NotionConfig struct {
	Secret  string
	APIURL  string
	Version string
	Timeout time.Duration
}

// QuoteConfig represents the market data provider configuration.
type QuoteConfig struct {
	APIURL   string
	Proxy    string
	CacheTTL time.Duration
}

// LedgerConfig represents ledger file locations.
type LedgerConfig struct {
	Root        string
	DBPath      string
	MarketsFile string
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	timeout, err := parseDurationEnv("NOTION_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDurationEnv("QUOTE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Notion: NotionConfig{
			Secret:  os.Getenv("NOTION_INTEGRATION_SECRET"),
			APIURL:  getEnvOrDefault("NOTION_API_URL", "https://api.notion.com"),
			Version: getEnvOrDefault("NOTION_VERSION", "2022-06-28"),
			Timeout: timeout,
		},
		Quotes: QuoteConfig{
			APIURL:   getEnvOrDefault("QUOTE_API_URL", "https://query2.finance.yahoo.com"),
			Proxy:    os.Getenv("STOCK_PROXY"),
			CacheTTL: cacheTTL,
		},
		Ledger: LedgerConfig{
			Root:        getEnvOrDefault("LEDGER_ROOT", "./data"),
			DBPath:      os.Getenv("SYNC_DB_PATH"),
			MarketsFile: os.Getenv("MARKETS_FILE"),
		},
	}

	return config, nil
}

// Validate validates the configuration.
// It checks if all required fields are set.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "notion":
			switch path[1] {
			case "secret":
				value = c.Notion.Secret
			case "apiUrl":
				value = c.Notion.APIURL
			case "version":
				value = c.Notion.Version
			}
		case "quotes":
			switch path[1] {
			case "apiUrl":
				value = c.Quotes.APIURL
			case "proxy":
				value = c.Quotes.Proxy
			}
		case "ledger":
			switch path[1] {
			case "root":
				value = c.Ledger.Root
			case "dbPath":
				value = c.Ledger.DBPath
			case "marketsFile":
				value = c.Ledger.MarketsFile
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv parses a time.Duration from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}

	return parsed, nil
}
