package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/freshcart/gateway"
	"github.com/example/freshcart/pkg/app"
	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/discovery"
	"github.com/example/freshcart/pkg/grpc"
	"github.com/example/freshcart/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting checkout service",
		zap.String("name", cfg.Server.Name),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("port", cfg.Gateway.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise checkout", zap.Error(err))
	}

	var idem gateway.IdempotencyStore
	if a.Redis != nil {
		idem = a.Redis
	}
	gw := gateway.NewGateway(cfg, logger, a.Service, idem)

	serverErr := make(chan error, 2)
	go func() {
		if err := gw.Start(); err != nil {
			serverErr <- fmt.Errorf("gateway: %w", err)
		}
	}()

	var health *grpc.HealthServer
	if cfg.GRPC.Enabled {
		health = grpc.NewHealthServer(&cfg.GRPC, cfg.Server.Name, logger, a.Checks...)
		go health.Watch(ctx)
		go func() {
			if err := health.Start(); err != nil {
				serverErr <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Gateway.Port,
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, logger)
		if err != nil {
			logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else if err := sd.Register(ctx, instance); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		} else {
			logger.Info("Service registered in etcd",
				zap.String("name", instance.Name),
				zap.String("address", instance.Addr()))
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer cancel()

	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
		sd.Close()
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gateway shutdown failed", zap.Error(err))
	}
	if health != nil {
		health.Stop()
	}
	a.Close(shutdownCtx)

	logger.Info("Checkout service stopped")
}
