package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/markqiu/openbb-tushare/internal/api"
	"github.com/markqiu/openbb-tushare/internal/app"
	"github.com/markqiu/openbb-tushare/internal/config"
	"github.com/markqiu/openbb-tushare/internal/httpapi"
	"github.com/markqiu/openbb-tushare/internal/refresh"
	"github.com/markqiu/openbb-tushare/internal/util"
)

func main() {
	cfg, err := config.Load(config.Path("config/tushare.yaml"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := app.NewLogger(cfg.Logging)
	util.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		log.Fatal(err)
	}
	logger.Info("tushare-server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	a, err := app.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing provider: %w", err)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Scheduled refresh calls Tushare with the server's own token.
	if cfg.Cache.RefreshCron != "" && cfg.Tushare.APIKey != "" {
		r := refresh.New(logger, a.Metrics)
		for _, d := range a.Models.Datasets() {
			if err := r.Register(d); err != nil {
				return err
			}
		}
		if err := r.Start(cfg.Cache.RefreshCron); err != nil {
			return err
		}
		defer r.Stop()
	} else {
		logger.Info("scheduled refresh disabled", "cron", cfg.Cache.RefreshCron, "api_key_set", cfg.Tushare.APIKey != "")
	}

	handler := httpapi.NewServer(a.Models.Registry(), a.Metrics, logger).Handler()
	grpcAddr := ""
	if cfg.Server.GRPCPort > 0 {
		grpcAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	}
	srv := api.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), grpcAddr, handler, logger)

	logger.Info("tushare-server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "grpc_port", cfg.Server.GRPCPort)
	return srv.ListenAndServe(ctx)
}
