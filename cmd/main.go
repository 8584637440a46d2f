package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/status-dashboard/config"
	"github.com/angeloszaimis/status-dashboard/internal/engine"
	"github.com/angeloszaimis/status-dashboard/internal/httpserver"
	"github.com/angeloszaimis/status-dashboard/internal/registry"
	"github.com/angeloszaimis/status-dashboard/pkg/logger"
)

const closeTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config/config.yaml or ./config.yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Dashboard stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	eng := engine.New(reg, engineOptions(cfg), log)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(eng, log), logger.Component(log, "http"))
	if err != nil {
		_ = eng.Close(context.Background())
		return err
	}

	if err := eng.Start(); err != nil {
		_ = eng.Close(context.Background())
		return err
	}

	log.Info("Dashboard started",
		slog.String("addr", cfg.Server.Address),
		slog.Int("services", reg.Len()),
		slog.Duration("interval", cfg.PollInterval()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		return eng.Close(shutdownCtx)
	})

	return g.Wait()
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	descriptors := make([]registry.Descriptor, 0, len(cfg.Services))

	for _, svc := range cfg.Services {
		d, err := registry.NewDescriptor(svc.ID, svc.Address(), svc.Label, svc.Sections...)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}

	return registry.New(descriptors...)
}

func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		Interval:       cfg.PollInterval(),
		ProbeTimeout:   cfg.ProbeTimeout(),
		HealthPath:     cfg.Polling.HealthPath,
		SectionTimeout: cfg.SectionTimeout(),
		MaxBodyBytes:   cfg.Sections.MaxBodyBytes,
		MetricsBuffer:  cfg.Metrics.BufferSize,
	}
}
