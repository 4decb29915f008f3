package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/markqiu/openbb-tushare/internal/app"
	"github.com/markqiu/openbb-tushare/internal/config"
	"github.com/markqiu/openbb-tushare/internal/datefmt"
	"github.com/markqiu/openbb-tushare/internal/domain"
	"github.com/markqiu/openbb-tushare/internal/gather"
	"github.com/markqiu/openbb-tushare/internal/util"
)

func main() {
	var (
		start   = flag.String("start", "", "first date to gather, YYYY-MM-DD (default one year before -end)")
		end     = flag.String("end", "", "last date to gather, YYYY-MM-DD (default today)")
		period  = flag.String("period", string(domain.PeriodDaily), "bar period: daily, weekly or monthly")
		workers = flag.Int("workers", 4, "symbols fetched concurrently")
	)
	flag.Parse()

	if err := run(*start, *end, domain.Period(*period), *workers); err != nil {
		log.Fatal(err)
	}
}

func run(start, end string, period domain.Period, workers int) error {
	cfg, err := config.Load(config.Path("config/tushare.yaml"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Tushare.APIKey == "" {
		return errors.New("tushare.api_key (or TUSHARE_API_KEY) is required")
	}
	if !period.Valid() {
		return fmt.Errorf("unknown period %q", period)
	}

	endDate, err := datefmt.Resolve(flagDate(end), "end", datefmt.Truncate(time.Now().UTC()))
	if err != nil {
		return err
	}
	startDate, err := datefmt.Resolve(flagDate(start), "start", endDate.AddDate(-1, 0, 0))
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Logging)
	util.SetDefault(logger)

	a, err := app.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing provider: %w", err)
	}
	defer a.Close()

	historical, ok := a.Models.Registry().Get("EquityHistorical")
	if !ok {
		return errors.New("EquityHistorical model not registered")
	}

	g := gather.NewBarGatherer(a.Models.Equities(), historical, gather.BarGathererConfig{
		Token:   cfg.Tushare.APIKey,
		Period:  period,
		Dates:   gather.DateRange{Start: startDate, End: endDate},
		DataDir: cfg.Storage.DataDir,
		Workers: workers,
		Log:     logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gatherer", "name", g.Name())
	if err := g.Run(ctx); err != nil {
		return fmt.Errorf("gatherer error: %w", err)
	}
	return nil
}

// flagDate treats an unset flag as no date.
func flagDate(s string) any {
	if s == "" {
		return nil
	}
	return s
}
