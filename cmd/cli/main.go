package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/account"
	"github.com/dmitrijs2005/gophclass/internal/client/auth"
	"github.com/dmitrijs2005/gophclass/internal/client/cli"
	"github.com/dmitrijs2005/gophclass/internal/client/config"
	"github.com/dmitrijs2005/gophclass/internal/client/credentials"
	"github.com/dmitrijs2005/gophclass/internal/client/gateway"
	"github.com/dmitrijs2005/gophclass/internal/client/metrics"
	"github.com/dmitrijs2005/gophclass/internal/client/migrations"
	"github.com/dmitrijs2005/gophclass/internal/client/monitor"
	"github.com/dmitrijs2005/gophclass/internal/dbx"
	"github.com/dmitrijs2005/gophclass/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

const monitorReconnectEvery = 2 * time.Second

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "client stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Router(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	gwOpts := []gateway.Option{
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		gateway.WithLogger(logger.With("component", "gateway")),
		gateway.WithMetrics(collector),
		gateway.WithRefreshPath(cfg.Endpoints.Refresh),
	}
	if cfg.ProactiveRefresh {
		gwOpts = append(gwOpts, gateway.WithProactiveRefresh(cfg.ProactiveRefreshSkew))
	}
	if cfg.KeepSessionOnRefreshOutage {
		gwOpts = append(gwOpts, gateway.WithKeepSessionOnRefreshOutage())
	}
	gw := gateway.New(cfg.ServerURL, store, gwOpts...)
	acc := account.NewService(gw, cfg.Endpoints)

	wsBase, err := cfg.WebSocketBase()
	if err != nil {
		return err
	}

	// the monitor asks the controller before reconnecting; the controller
	// is built right after and before anything can attach
	var ctrl *auth.Controller
	monOpts := []monitor.Option{
		monitor.WithLogger(logger.With("component", "monitor")),
		monitor.WithMetrics(collector),
		monitor.WithPathFormat(cfg.Endpoints.WebSocketSession),
		monitor.WithActive(func() bool { return ctrl.Active() }),
		monitor.WithTokenSource(func(ctx context.Context) (string, string, bool) { return ctrl.MonitorToken(ctx) }),
	}
	if cfg.MonitorReconnect {
		monOpts = append(monOpts, monitor.WithReconnect(monitorReconnectEvery))
	}
	mon := monitor.New(wsBase, monOpts...)

	ctrl = auth.New(store, gw, acc, mon,
		auth.WithLogger(logger.With("component", "auth")),
		auth.WithMetrics(collector),
		auth.WithEndpoints(cfg.Endpoints),
		auth.WithBootstrapPolicy(cfg.BootstrapPolicy),
		auth.WithBootstrapTimeout(cfg.BootstrapTimeout),
	)
	defer ctrl.Close()

	cli.NewApp(ctrl, acc, logger).Run(ctx)
	return nil
}

// openStore returns the SQLite credential store, or a memory store when no
// database path is configured. db is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (credentials.Store, *sql.DB, error) {
	if cfg.DatabasePath == "" {
		logger.Warn(ctx, "no database configured, session will not survive a restart")
		return credentials.NewMemoryStore(), nil, nil
	}

	db, err := dbx.OpenSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	var opts []credentials.Option
	if cfg.StorageSecret != "" {
		opts = append(opts, credentials.WithSecret([]byte(cfg.StorageSecret)))
	}
	store, err := credentials.NewSQLiteStore(ctx, db, logger.With("component", "credentials"), opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
