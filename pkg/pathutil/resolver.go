// Package pathutil provides centralized path management for ledger files and the sync database.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ledger file names inside an instrument directory.
const (
	BuyFile      = "buy.json"
	SellFile     = "sell.json"
	DividendFile = "dividend.json"
)

// PathResolver manages paths for ledger files and the sync database.
type PathResolver struct {
	ledgerRoot   string
	databasePath string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// LedgerRoot is the root directory holding one folder per market (e.g., ./data)
	LedgerRoot string
	// DatabasePath is the path to the SQLite database file for sync history
	DatabasePath string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {LedgerRoot}/.sync/sync.db
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.LedgerRoot, ".sync", "sync.db")
	}

	return &PathResolver{
		ledgerRoot:   config.LedgerRoot,
		databasePath: dbPath,
	}
}

// GetLedgerRoot returns the ledger root directory.
func (p *PathResolver) GetLedgerRoot() string {
	return p.ledgerRoot
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetMarketDir returns the directory of a market's data folder.
// Example: ./data/hk_cn
func (p *PathResolver) GetMarketDir(dataFolder string) string {
	return filepath.Join(p.ledgerRoot, dataFolder)
}

// GetInstrumentDir returns the directory holding an instrument's ledger files.
// Example: ./data/hk_cn/0700
func (p *PathResolver) GetInstrumentDir(dataFolder, code string) (string, error) {
	if code == "" || strings.ContainsAny(code, `/\`) || code == "." || code == ".." {
		return "", fmt.Errorf("invalid instrument code: %q", code)
	}
	return filepath.Join(p.GetMarketDir(dataFolder), code), nil
}

// GetLedgerFilePath returns the path of one ledger file of an instrument.
// Example: ./data/hk_cn/0700/buy.json
func (p *PathResolver) GetLedgerFilePath(dataFolder, code, name string) (string, error) {
	dir, err := p.GetInstrumentDir(dataFolder, code)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ListInstruments returns the instrument codes of a market, sorted.
// Hidden directories and plain files are ignored. A missing market folder yields no codes.
func (p *PathResolver) ListInstruments(dataFolder string) ([]string, error) {
	marketDir := p.GetMarketDir(dataFolder)
	if !p.IsDir(marketDir) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(marketDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read market directory: %w", err)
	}

	codes := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		codes = append(codes, entry.Name())
	}
	sort.Strings(codes)

	return codes, nil
}

// IsDir checks if a path is a directory.
func (p *PathResolver) IsDir(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
