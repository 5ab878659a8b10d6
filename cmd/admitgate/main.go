package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/admitgate/internal/config"
	"github.com/AlexKimmel/admitgate/internal/obs"
	"github.com/AlexKimmel/admitgate/internal/ratelimit/memory"
	"github.com/AlexKimmel/admitgate/internal/server"
	"github.com/AlexKimmel/admitgate/internal/stats"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, cfg.Observability.Tracing, os.Stderr)
	if err != nil {
		logger.Fatal().Err(err).Msg("setup tracing")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := obs.NewMetrics(reg)

	policy, err := cfg.Admission.Policy()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid admission policy")
	}
	lim, err := memory.New(policy,
		memory.WithLogger(logger.With().Str("component", "admission").Logger()),
		memory.WithOnSweep(metrics.OnSweep),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("create limiter")
	}
	metrics.TrackIdentities(lim.Len)
	lim.StartJanitor(ctx, cfg.Admission.JanitorInterval())

	recorder, snapshot, closeStats := setupStats(ctx, cfg.Stats, logger)

	handler, err := server.New(server.Deps{
		Config:   cfg,
		Logger:   logger,
		Limiter:  lim,
		Metrics:  metrics,
		Gatherer: reg,
		Stats:    recorder,
		Snapshot: snapshot,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build server")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int("limit", policy.Limit).
			Dur("window", policy.Window).
			Int("routes", len(cfg.Routes)).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	_ = lim.Close()
	closeStats()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown")
	}
	logger.Info().Msg("bye")
}

// setupStats picks the decision-stats backend. A Redis outage at startup
// degrades to no stats rather than refusing to serve.
func setupStats(ctx context.Context, cfg config.Stats, logger zerolog.Logger) (stats.Recorder, func() stats.Snapshot, func()) {
	switch cfg.Backend {
	case "memory":
		m := stats.NewMemory()
		return m, m.Snapshot, func() {}
	case "redis":
		client, err := stats.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis stats disabled")
			return stats.Nop{}, nil, func() {}
		}
		rec := stats.NewRedis(client, stats.WithPrefix(cfg.Prefix), stats.WithTTL(cfg.TTL()))
		return rec, nil, func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("close redis")
			}
		}
	default:
		return stats.Nop{}, nil, func() {}
	}
}
