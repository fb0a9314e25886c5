package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shelfwatch/shelfwatch/api"
	"github.com/shelfwatch/shelfwatch/api/handler"
	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/relay"
)

const alertCheckInterval = 5 * time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := config.Load()
	initLogger(cfg.Log)
	slog.Info("shelfwatch starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"store", cfg.Store.Driver,
		"browser", cfg.Browser.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	// Outbox relay: publishes tracked-product events to a Redis stream.
	if cfg.Redis.Addr != "" && app.store != nil {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()

		rl := relay.New(app.store, client, cfg.Redis)
		go func() {
			if err := rl.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("outbox relay stopped", "error", err)
			}
		}()
		slog.Info("outbox relay enabled", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	// Periodic price-alert evaluation.
	if app.tracker != nil {
		go func() {
			ticker := time.NewTicker(alertCheckInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fired, err := app.tracker.CheckAlerts(ctx)
					if err != nil {
						slog.Warn("alert check failed", "error", err)
						continue
					}
					if fired > 0 {
						slog.Info("price alerts fired", "count", fired)
					}
				}
			}
		}()
	}

	var browserReporter handler.BrowserReporter
	if app.engine != nil {
		browserReporter = app.engine
	}

	deps := api.Deps{
		Scraper:     app.scraper,
		Registry:    app.registry,
		Store:       app.store,
		Tracker:     app.tracker,
		LLM:         app.llm,
		Cache:       app.cache,
		Browser:     browserReporter,
		StoreDriver: app.storeDriver,
	}
	router := api.NewRouter(deps, cfg, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// app.close() runs via defer — closes the browser and the store.
	slog.Info("shelfwatch stopped")
	return nil
}
