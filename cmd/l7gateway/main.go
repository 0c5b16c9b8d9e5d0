// Command l7gateway is the HTTP reverse-proxy front door for the
// mpeg-dash-processor fleet.
//
// Usage:
//
//	l7gateway
//
// All configuration comes from the environment — LISTEN_ADDR,
// MQTT_BROKER_HOST, MQTT_BROKER_PORT, STRATEGY. Shutdown is graceful: send
// SIGINT or SIGTERM and in-flight requests are given up to 10 seconds to
// complete.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashproxy/internal/config"
	"dashproxy/internal/l7proxy"
	"dashproxy/internal/loadmodel"
	"dashproxy/internal/middleware"
	"dashproxy/internal/strategy"
	"dashproxy/internal/telemetry"
)

// backends is the fixed mpeg-dash-processor fleet. The spec treats fleet
// membership as static for the life of the process — there is no discovery
// and no admin API to change it.
var backends = []string{
	"mpeg-dash-processor-1:8080",
	"mpeg-dash-processor-2:8080",
	"mpeg-dash-processor-3:8080",
	"mpeg-dash-processor-4:8080",
	"mpeg-dash-processor-5:8080",
	"mpeg-dash-processor-6:8080",
	"mpeg-dash-processor-7:8080",
	"mpeg-dash-processor-8:8080",
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	picker, err := buildPicker(ctx, cfg)
	if err != nil {
		slog.Error("failed to build strategy", "error", err)
		os.Exit(1)
	}

	gw := l7proxy.New(backends, picker)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      middleware.Logger(gw),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("l7gateway listening",
			"addr", cfg.ListenAddr,
			"strategy", cfg.Strategy,
			"backends", len(backends),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down l7gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("l7gateway stopped")
}

// buildPicker constructs the selection strategy named by cfg.Strategy. The
// weighted strategy additionally spins up the MQTT telemetry ingest task,
// which runs for the life of ctx.
func buildPicker(ctx context.Context, cfg config.Config) (strategy.Picker, error) {
	var weights strategy.WeightSource
	if cfg.Strategy == "weighted" {
		model := loadmodel.NewModel()
		ingest := telemetry.NewIngest(cfg.BrokerHost, cfg.BrokerPort, model)
		go ingest.Run(ctx)
		weights = model
	}

	return strategy.New(cfg.Strategy, weights)
}
