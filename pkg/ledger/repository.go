package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
	"github.com/shunichi-ikebuchi/position-sync/pkg/pathutil"
)

// Repository defines the interface for ledger file operations.
type Repository interface {
	// ListCodes lists the instrument codes of a market
	ListCodes(cfg market.Config) ([]string, error)

	// LoadStock loads and validates every record of one instrument
	LoadStock(cfg market.Config, code string) (*Stock, error)
}

// FileSystemRepository reads ledger records from JSON files laid out as
// {root}/{dataFolder}/{code}/{buy,sell,dividend}.json.
type FileSystemRepository struct {
	pathResolver *pathutil.PathResolver
}

// NewFileSystemRepository creates a new FileSystemRepository.
func NewFileSystemRepository(pathResolver *pathutil.PathResolver) *FileSystemRepository {
	return &FileSystemRepository{
		pathResolver: pathResolver,
	}
}

// ListCodes lists the instrument codes of a market.
func (r *FileSystemRepository) ListCodes(cfg market.Config) ([]string, error) {
	return r.pathResolver.ListInstruments(cfg.DataFolder)
}

// LoadBuys loads, normalizes and validates the buys of an instrument.
// buy.json is required.
func (r *FileSystemRepository) LoadBuys(cfg market.Config, code string) ([]Buy, error) {
	f, err := r.open(cfg, code, pathutil.BuyFile, false)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := DecodeBuys(f)
	if err != nil {
		return nil, decodeError(code, f.Name(), err)
	}

	buys := NormalizeBuys(raw)
	if err := ValidateBuys(code, buys); err != nil {
		return nil, err
	}
	return buys, nil
}

// LoadSells loads and validates the sells of an instrument against buys.
// Buys are loaded when nil. A missing sell.json yields no sells.
func (r *FileSystemRepository) LoadSells(cfg market.Config, code string, buys []Buy) ([]Sell, error) {
	buys, err := r.ensureBuys(cfg, code, buys)
	if err != nil {
		return nil, err
	}

	f, err := r.open(cfg, code, pathutil.SellFile, true)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	sells, err := DecodeSells(f)
	if err != nil {
		return nil, decodeError(code, f.Name(), err)
	}

	if err := ValidateSells(code, buys, sells); err != nil {
		return nil, err
	}
	return sells, nil
}

// LoadDividends loads and validates the dividends of an instrument against buys.
// Buys are loaded when nil. A missing dividend.json yields no dividends.
func (r *FileSystemRepository) LoadDividends(cfg market.Config, code string, buys []Buy) ([]Dividend, error) {
	buys, err := r.ensureBuys(cfg, code, buys)
	if err != nil {
		return nil, err
	}

	f, err := r.open(cfg, code, pathutil.DividendFile, true)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	dividends, err := DecodeDividends(f)
	if err != nil {
		return nil, decodeError(code, f.Name(), err)
	}

	if err := ValidateDividends(code, buys, dividends); err != nil {
		return nil, err
	}
	return dividends, nil
}

// LoadStock loads and validates every record of one instrument.
func (r *FileSystemRepository) LoadStock(cfg market.Config, code string) (*Stock, error) {
	buys, err := r.LoadBuys(cfg, code)
	if err != nil {
		return nil, err
	}

	sells, err := r.LoadSells(cfg, code, buys)
	if err != nil {
		return nil, err
	}

	dividends, err := r.LoadDividends(cfg, code, buys)
	if err != nil {
		return nil, err
	}

	return &Stock{
		Code:      code,
		Buys:      buys,
		Sells:     sells,
		Dividends: dividends,
	}, nil
}

// decodeError tags a decode failure with the instrument and file.
func decodeError(code, file string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		verr.Code = code
		verr.Detail = file + ": " + verr.Detail
		return verr
	}
	return fmt.Errorf("ledger %s: %s: %w", code, file, err)
}

func (r *FileSystemRepository) ensureBuys(cfg market.Config, code string, buys []Buy) ([]Buy, error) {
	if buys != nil {
		return buys, nil
	}
	return r.LoadBuys(cfg, code)
}

// open opens a ledger file. When optional is set, a missing file returns (nil, nil).
func (r *FileSystemRepository) open(cfg market.Config, code, name string, optional bool) (*os.File, error) {
	path, err := r.pathResolver.GetLedgerFilePath(cfg.DataFolder, code, name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger %s: failed to open %s: %w", code, name, err)
	}
	return f, nil
}
