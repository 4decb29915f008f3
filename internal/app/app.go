// Package app assembles the provider from configuration: logger, metrics,
// cache, archive, vendor client and models.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/markqiu/openbb-tushare/internal/config"
	"github.com/markqiu/openbb-tushare/internal/metrics"
	"github.com/markqiu/openbb-tushare/internal/models"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/tushare"
	"github.com/markqiu/openbb-tushare/internal/util"
)

// App holds the wired components. Close releases the cache.
type App struct {
	Config  *config.Config
	Log     *slog.Logger
	Metrics *metrics.Metrics
	Cache   *store.TableCache
	Bars    *store.BarArchive
	Client  *tushare.Client
	Models  *models.Models
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg config.Logging) *slog.Logger {
	return util.NewLoggerWith(util.LogOptions{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}

// Open wires every component from cfg. log may be nil, in which case one is
// built from cfg.Logging.
func Open(cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.Logging)
	}
	m := metrics.New()

	cache, err := store.NewTableCache(cfg.Storage.CachePath)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	client := tushare.NewClient(
		tushare.WithBaseURL(cfg.Tushare.BaseURL),
		tushare.WithTimeout(time.Duration(cfg.Tushare.TimeoutSec)*time.Second),
		tushare.WithRateLimit(cfg.Tushare.RateLimitPerMin),
		tushare.WithLogger(log),
		tushare.WithMetrics(m),
	)
	bars := store.NewBarArchive(cfg.Storage.DataDir)

	return &App{
		Config:  cfg,
		Log:     log,
		Metrics: m,
		Cache:   cache,
		Bars:    bars,
		Client:  client,
		Models: models.New(models.Deps{
			Vendor:       client,
			Cache:        cache,
			Bars:         bars,
			DefaultToken: cfg.Tushare.APIKey,
			Log:          log,
			Metrics:      m,
		}),
	}, nil
}

// Close releases the cache.
func (a *App) Close() error {
	return a.Cache.Close()
}
