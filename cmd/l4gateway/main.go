// Command l4gateway is the opaque TCP splice front door for the
// mpeg-dash-processor fleet.
//
// Usage:
//
//	l4gateway
//
// All configuration comes from the environment — LISTEN_ADDR,
// MQTT_BROKER_HOST, MQTT_BROKER_PORT, STRATEGY. Unlike l7gateway this binary
// never parses the bytes it forwards; it only opens sockets and pumps bytes
// between them.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"dashproxy/internal/config"
	"dashproxy/internal/l4proxy"
	"dashproxy/internal/loadmodel"
	"dashproxy/internal/strategy"
	"dashproxy/internal/telemetry"
)

// backends is the fixed mpeg-dash-processor fleet, identical to l7gateway's.
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

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.ListenAddr, "error", err)
		os.Exit(1)
	}

	p := l4proxy.New(backends, picker)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("l4gateway listening",
			"addr", cfg.ListenAddr,
			"strategy", cfg.Strategy,
			"backends", len(backends),
		)
		serveErr <- p.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down l4gateway")
		lis.Close()
	case err := <-serveErr:
		if err != nil {
			slog.Error("accept loop failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("l4gateway stopped")
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
