package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/markqiu/openbb-tushare/internal/datefmt"
	"github.com/markqiu/openbb-tushare/internal/domain"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
)

// SymbolSource lists the symbols to backfill. *models.Dataset implements it.
type SymbolSource interface {
	Load(ctx context.Context, token string, useCache bool) ([]store.Row, error)
}

// BarGatherer archives bars for every listed equity by running the
// historical endpoint once per symbol. The endpoint writes the archive.
type BarGatherer struct {
	symbols    SymbolSource
	historical provider.Endpoint
	token      string
	period     domain.Period
	dates      DateRange
	dir        string
	workers    int
	log        *slog.Logger
}

// BarGathererConfig configures a BarGatherer.
type BarGathererConfig struct {
	Token   string
	Period  domain.Period
	Dates   DateRange
	DataDir string
	Workers int
	Log     *slog.Logger
}

var _ Gatherer = (*BarGatherer)(nil)

// NewBarGatherer creates a gatherer fed by symbols and writing through
// historical.
func NewBarGatherer(symbols SymbolSource, historical provider.Endpoint, cfg BarGathererConfig) *BarGatherer {
	if cfg.Period == "" {
		cfg.Period = domain.PeriodDaily
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &BarGatherer{
		symbols:    symbols,
		historical: historical,
		token:      cfg.Token,
		period:     cfg.Period,
		dates:      cfg.Dates,
		dir:        filepath.Join(cfg.DataDir, "cn", string(cfg.Period)),
		workers:    cfg.Workers,
		log:        cfg.Log.With("component", "gather", "period", string(cfg.Period)),
	}
}

func (g *BarGatherer) Name() string { return "cn-" + string(g.period) + "-bars" }

// Run backfills every symbol. Symbols with no bars are remembered and
// skipped on later runs; a run for a range already completed is a no-op.
// Per-symbol failures are logged and counted, and reported together.
func (g *BarGatherer) Run(ctx context.Context) error {
	progress, err := newProgressTracker(g.dir)
	if err != nil {
		return err
	}
	defer progress.Close()

	runKey := datefmt.Compact(g.dates.Start) + "-" + datefmt.Compact(g.dates.End)
	if progress.IsCompleted(runKey) {
		g.log.Info("range already gathered", "range", runKey)
		return nil
	}

	rows, err := g.symbols.Load(ctx, g.token, true)
	if err != nil {
		return fmt.Errorf("loading symbols: %w", err)
	}
	codes := make([]string, 0, len(rows))
	for _, r := range rows {
		if code, ok := r["ts_code"].(string); ok && code != "" && !progress.IsTriedEmpty(code) {
			codes = append(codes, code)
		}
	}
	g.log.Info("gathering bars", "symbols", len(codes), "range", runKey)

	creds := provider.Credentials{provider.CredentialAPIKey: g.token}
	var done, empty, failed atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, code := range codes {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return egCtx.Err()
			}
			_, err := g.historical.Fetch(egCtx, provider.Params{
				"symbol":     code,
				"start_date": g.dates.Start.Format(datefmt.Layout),
				"end_date":   g.dates.End.Format(datefmt.Layout),
				"period":     string(g.period),
			}, creds)
			switch {
			case err == nil:
				done.Add(1)
			case errors.Is(err, provider.ErrEmptyData):
				empty.Add(1)
				if err := progress.MarkEmpty(code); err != nil {
					return err
				}
			case egCtx.Err() != nil:
				return egCtx.Err()
			default:
				failed.Add(1)
				g.log.Warn("gathering symbol failed", "symbol", code, "error", err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.log.Info("gathering finished", "done", done.Load(), "empty", empty.Load(), "failed", failed.Load())
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d symbols failed", n, len(codes))
	}
	return progress.MarkCompleted(runKey)
}
