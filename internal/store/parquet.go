package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/markqiu/openbb-tushare/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*BarArchive)(nil)

// BarArchive implements BarStore using Parquet files on disk, one file per
// symbol, period and year. It is safe for concurrent use: each file has its
// own lock, and files are replaced by rename so a reader never sees a
// partial write.
type BarArchive struct {
	DataDir string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewBarArchive creates a BarArchive rooted at the given data directory.
func NewBarArchive(dataDir string) *BarArchive {
	return &BarArchive{DataDir: dataDir}
}

// BarRecord is the Parquet schema for archived bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	TradeDate int64   `parquet:"trade_date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	PreClose  float64 `parquet:"pre_close"`
	Change    float64 `parquet:"change"`
	PctChg    float64 `parquet:"pct_chg"`
	Volume    float64 `parquet:"vol"`
	Amount    float64 `parquet:"amount"`
}

// WriteBars merges bars into the archive. Bars are grouped by symbol and
// year; each group lands in
//
//	<DataDir>/cn/<period>/<SYMBOL>/<YYYY>.parquet
//
// and replaces any stored bar of the same symbol and date.
func (a *BarArchive) WriteBars(_ context.Context, period domain.Period, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Date.Year()}
		groups[k] = append(groups[k], toRecord(b))
	}

	for k, records := range groups {
		if err := a.mergeFile(a.barPath(k.symbol, period, k.year), records); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// mergeFile read-merge-writes one year file under its lock.
func (a *BarArchive) mergeFile(path string, records []BarRecord) error {
	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := readParquetFile[BarRecord](path)
	if err != nil {
		return err
	}
	return writeParquetFile(path, mergeBarRecords(existing, records))
}

func (a *BarArchive) readFile(path string) ([]BarRecord, error) {
	lock := a.lockFor(path)
	lock.RLock()
	defer lock.RUnlock()
	return readParquetFile[BarRecord](path)
}

func (a *BarArchive) lockFor(path string) *sync.RWMutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locks == nil {
		a.locks = make(map[string]*sync.RWMutex)
	}
	l, ok := a.locks[path]
	if !ok {
		l = &sync.RWMutex{}
		a.locks[path] = l
	}
	return l
}

// ReadBars reads bars of symbol within [start, end] from the year files
// covering the range.
func (a *BarArchive) ReadBars(_ context.Context, symbol string, period domain.Period, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := a.readFile(a.barPath(symbol, period, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.TradeDate).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, fromRecord(r))
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols with archived bars for the period.
func (a *BarArchive) ListSymbols(_ context.Context, period domain.Period) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.DataDir, "cn", string(period)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barPath returns the filesystem path for a bar Parquet file.
func (a *BarArchive) barPath(symbol string, period domain.Period, year int) string {
	return filepath.Join(a.DataDir, "cn", string(period), strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func toRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:    b.Symbol,
		TradeDate: b.Date.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		PreClose:  b.PreClose,
		Change:    b.Change,
		PctChg:    b.PctChg,
		Volume:    b.Volume,
		Amount:    b.Amount,
	}
}

func fromRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol:   r.Symbol,
		Date:     time.UnixMilli(r.TradeDate).UTC(),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		PreClose: r.PreClose,
		Change:   r.Change,
		PctChg:   r.PctChg,
		Volume:   r.Volume,
		Amount:   r.Amount,
	}
}

// writeParquetFile writes records to a temp file next to path and renames
// it into place.
func writeParquetFile[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-*.parquet")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := parquet.Write(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readParquetFile returns no records for a missing file.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by (symbol, trade date),
// preferring incoming records, and sorts them by date.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.TradeDate}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.TradeDate}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].TradeDate < merged[j].TradeDate
	})
	return merged
}
