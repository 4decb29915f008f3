// Package store defines the persistence layer of the provider: a generic
// table cache for slow-changing reference data and a bar archive for
// historical prices.
package store

import (
	"context"
	"time"

	"github.com/markqiu/openbb-tushare/internal/domain"
)

// Row is one cached record keyed by column name.
type Row map[string]any

// Cache persists tabular result sets keyed by a primary-key column.
type Cache interface {
	// Read returns every row of the named table, or no rows if the table
	// has never been written.
	Read(ctx context.Context, table string) ([]Row, error)

	// ReadKey returns the row whose primary key equals key.
	ReadKey(ctx context.Context, table string, key any) (Row, bool, error)

	// Write creates the table if needed and upserts rows by primary key.
	Write(ctx context.Context, t Table, rows []Row) error

	// Replace atomically swaps the whole table content for rows.
	Replace(ctx context.Context, t Table, rows []Row) error

	// Clear deletes every row of the named table.
	Clear(ctx context.Context, table string) error
}

// BarStore persists and retrieves OHLCV bars per symbol and period.
type BarStore interface {
	// WriteBars merges bars into storage, replacing bars with the same
	// symbol and date.
	WriteBars(ctx context.Context, period domain.Period, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, period domain.Period, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with stored bars for the period.
	ListSymbols(ctx context.Context, period domain.Period) ([]string, error)
}
