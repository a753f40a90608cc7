package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carelink/upstream/config"
	"github.com/carelink/upstream/internal/circuitbreaker"
	"github.com/carelink/upstream/internal/httpserver"
	"github.com/carelink/upstream/internal/metrics"
	"github.com/carelink/upstream/internal/pool"
	"github.com/carelink/upstream/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	store := metrics.NewMetrics(registry)
	collector := metrics.NewCollector(1000, store, log)
	collector.Start(ctx)

	clientCfg, err := clientConfig(cfg)
	if err != nil {
		log.Error("Invalid client configuration", slog.Any("err", err))
		os.Exit(1)
	}

	settings, err := breakerSettings(cfg)
	if err != nil {
		log.Error("Invalid breaker configuration", slog.Any("err", err))
		os.Exit(1)
	}

	p := pool.New(clientCfg, log,
		pool.WithCollector(collector),
		pool.WithBreakerSettings(settings))
	defer p.Close()

	handler := httpserver.TelemetryHandler(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		func() any {
			return struct {
				Pool    pool.Stats       `json:"pool"`
				Metrics metrics.Snapshot `json:"metrics"`
			}{p.Stats(), collector.Snapshot()}
		},
	)

	srv, err := httpserver.New(cfg.Telemetry.Address, handler)
	if err != nil {
		log.Error("Failed to create telemetry server", slog.Any("err", err))
		os.Exit(1)
	}

	if err := pollUpstreams(ctx, cfg, p, log); err != nil {
		log.Error("Failed to start upstream polling", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting telemetry server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func clientConfig(cfg *config.Config) (pool.Config, error) {
	requestTimeout, err := time.ParseDuration(cfg.Client.RequestTimeout)
	if err != nil {
		return pool.Config{}, err
	}

	return pool.Config{
		PoolSize:       cfg.Client.PoolSize,
		RequestTimeout: requestTimeout,
		RetryAttempts:  cfg.Client.RetryAttempts,
	}, nil
}

func breakerSettings(cfg *config.Config) (circuitbreaker.Settings, error) {
	resetTimeout, err := time.ParseDuration(cfg.Breaker.ResetTimeout)
	if err != nil {
		return circuitbreaker.Settings{}, err
	}

	halfOpenTimeout, err := time.ParseDuration(cfg.Breaker.HalfOpenTimeout)
	if err != nil {
		return circuitbreaker.Settings{}, err
	}

	return circuitbreaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     resetTimeout,
		HalfOpenTimeout:  halfOpenTimeout,
	}, nil
}

// pollUpstreams starts one polling goroutine per configured upstream.
func pollUpstreams(ctx context.Context, cfg *config.Config, p *pool.ConnectionPool, log *slog.Logger) error {
	interval, err := time.ParseDuration(cfg.Client.PollInterval)
	if err != nil {
		return err
	}

	if len(cfg.Upstreams) == 0 {
		log.Warn("No upstreams configured; only serving telemetry")
		return nil
	}

	for _, upstream := range cfg.Upstreams {
		go poll(ctx, p, upstream.URL, interval, log)
	}

	return nil
}

func poll(ctx context.Context, p *pool.ConnectionPool, endpoint string, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Upstream polling stopped", slog.String("endpoint", endpoint))
			return

		case <-ticker.C:
			res, err := p.Acquire(ctx, endpoint)
			if err != nil {
				log.Warn("Upstream call failed",
					slog.String("endpoint", endpoint),
					slog.Any("err", err))
				continue
			}

			log.Info("Upstream call completed",
				slog.String("endpoint", endpoint),
				slog.Int("status", res.StatusCode))
		}
	}
}
