// Command marketd serves the cross-network purchase pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	market "github.com/mohamed3773/MyCProject-sub000"
	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/metrics"
	"github.com/mohamed3773/MyCProject-sub000/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewZapLogger(cfg.Market.LogLevel)
	if s, ok := log.(interface{ Sync() error }); ok {
		defer func() { _ = s.Sync() }()
	}

	if err := run(cfg, log); err != nil {
		log.Error("marketd exited with error", map[string]any{logger.FieldError: err})
		os.Exit(1)
	}
	log.Info("marketd shut down gracefully", nil)
}

func run(cfg *Config, log logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, err := cfg.networkTable()
	if err != nil {
		return fmt.Errorf("network table: %w", err)
	}

	opts := []market.Option{
		market.WithLogger(log),
		market.WithNetworks(table),
	}

	var metricsHandler http.Handler
	if cfg.Market.EnableMetrics {
		opts = append(opts, market.WithMetrics(metrics.NewPrometheusRecorder()))
		metricsHandler = promhttp.Handler()
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		opts = append(opts, market.WithStore(postgres.NewPurchaseStore(pool)))
		log.Info("using postgres sold-state store", nil)
	} else {
		log.Warn("DATABASE_URL not set, sold state is kept in memory", nil)
	}

	m, err := market.New(ctx, cfg.Market, opts...)
	if err != nil {
		return err
	}
	defer m.Close()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           m.Handler(metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server started", map[string]any{"addr": cfg.HTTPAddr})
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Info("received signal, shutting down", map[string]any{"signal": sig.String()})
		case <-gCtx.Done():
		}
		// In-flight purchases may be waiting for a confirmation.
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Market.ConfirmationTimeout)
		defer cancelShutdown()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
