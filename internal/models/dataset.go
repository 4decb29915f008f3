package models

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/tushare"
)

// Dataset is a reference list fetched whole from one Tushare API and kept
// in one cache table. Loads of the same dataset are serialized so two
// requests never rewrite the table at once.
type Dataset struct {
	table   store.Table
	api     string
	params  map[string]any
	fields  []string
	prepare func(t *tushare.Table) []map[string]any

	deps *Deps
	mu   sync.Mutex
}

func newDataset(deps *Deps, table store.Table, api string, params map[string]any, fields []string,
	prepare func(*tushare.Table) []map[string]any) *Dataset {
	return &Dataset{table: table, api: api, params: params, fields: fields, prepare: prepare, deps: deps}
}

// Name returns the cache table name.
func (d *Dataset) Name() string { return d.table.Name }

// Load returns the dataset rows. With useCache a non-empty cached table is
// returned as is; otherwise the vendor is called and its result replaces
// the cached table. An empty vendor result leaves the cache untouched.
func (d *Dataset) Load(ctx context.Context, token string, useCache bool) ([]store.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.deps.Log.With("table", d.table.Name)
	if useCache {
		rows, err := d.deps.Cache.Read(ctx, d.table.Name)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			d.deps.Metrics.CacheHit(d.table.Name)
			log.Debug("loaded from cache", "rows", len(rows))
			return rows, nil
		}
		d.deps.Metrics.CacheMiss(d.table.Name)
	}

	start := time.Now()
	result, err := d.deps.Vendor.Query(ctx, token, d.api, d.params, d.fields)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", d.table.Name, err)
	}
	if result.Len() == 0 {
		log.Warn("vendor returned no rows", "api", d.api)
		return []store.Row{}, nil
	}

	prepared := d.prepare(result)
	rows := make([]store.Row, 0, len(prepared))
	for _, r := range prepared {
		rows = append(rows, d.table.Project(r))
	}
	if err := d.deps.Cache.Replace(ctx, d.table, rows); err != nil {
		return nil, err
	}
	log.Info("fetched from vendor", "api", d.api, "rows", len(rows), "took", time.Since(start))
	return rows, nil
}

// Refresh reloads the dataset from the vendor, bypassing the cache.
func (d *Dataset) Refresh(ctx context.Context) (int, error) {
	rows, err := d.Load(ctx, d.deps.DefaultToken, false)
	return len(rows), err
}

// fillMissing sets absent or null declared columns to the zero value of
// their storage class.
func fillMissing(row map[string]any, t store.Table) {
	for _, c := range t.Columns {
		if row[c.Name] != nil {
			continue
		}
		switch c.Type {
		case store.TypeText:
			row[c.Name] = ""
		case store.TypeReal:
			row[c.Name] = 0.0
		case store.TypeInteger:
			row[c.Name] = int64(0)
		}
	}
}
