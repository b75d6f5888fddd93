package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tracking-svr/internal/auth"
	"tracking-svr/internal/config"
	"tracking-svr/internal/hub"
	"tracking-svr/internal/observability"
	"tracking-svr/internal/registry"
	"tracking-svr/internal/server"
	"tracking-svr/internal/simulator"
	"tracking-svr/internal/store"
	"tracking-svr/internal/tracker"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger()
	logger.Info("starting tracking-svr", "port", cfg.ListenPort)

	st, err := store.NewRedis(cfg.RedisAddr, cfg.RedisDB, store.Options{
		Retention: cfg.Retention,
		Freshness: cfg.FreshnessWindow,
	})
	if err != nil {
		logger.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	h := hub.New(st, logger, cfg.SessionQueueSize, cfg.FreshnessWindow)
	verifier := auth.NewStaticVerifier(auth.ParseStaticTokens(cfg.AuthTokens))
	svc := tracker.New(st, h, verifier, registry.NewStatic(), tracker.Options{
		Freshness:          cfg.FreshnessWindow,
		NearbyRadiusMeters: cfg.NearbyRadiusMeters,
	})
	srv := server.New(svc, h, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st.RunSweeper(ctx, cfg.SweepInterval, logger)
	}()

	if cfg.SimulatorEnabled {
		routes, err := config.LoadRoutes(cfg.SimulatorRoutes)
		if err != nil {
			logger.Error("simulator routes failed to load", "file", cfg.SimulatorRoutes, "error", err)
			os.Exit(1)
		}
		sim := simulator.New(svc, routes, cfg.SimulatorTick, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.Run(ctx)
		}()
	}

	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: server.MetricsHandler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	apiSrv := &http.Server{Addr: ":" + cfg.ListenPort, Handler: srv.Handler()}
	go func() {
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	h.Shutdown()
	wg.Wait()
	logger.Info("stopped")
}
