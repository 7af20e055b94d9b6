package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/freshcart/pkg/app"
	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/discovery"
	"github.com/example/freshcart/pkg/logging"
	"github.com/example/freshcart/pkg/subscription"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	once := flag.Bool("once", false, "run a single pass and exit")
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

	loc, err := cfg.Subscriptions.TimeLocation()
	if err != nil {
		logger.Fatal("Invalid subscriptions.location", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise checkout", zap.Error(err))
	}
	defer a.Close(context.Background())

	// One runner per deployment. The runner has no listener, so the pid
	// stands in for the port to tell runners on one host apart.
	if len(cfg.Etcd.Endpoints) > 0 {
		instance := &discovery.ServiceInstance{
			Name: cfg.Server.Name + "-subscriptions",
			Host: cfg.Server.Host,
			Port: os.Getpid(),
		}
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
		if err != nil {
			logger.Fatal("Failed to connect to etcd", zap.Error(err))
		}
		defer sd.Close()
		if err := sd.RegisterExclusive(ctx, instance); err != nil {
			logger.Fatal("Refusing to start subscription runner", zap.Error(err))
		}
		defer func() {
			deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sd.Deregister(deregCtx, instance); err != nil {
				logger.Error("Failed to deregister subscription runner", zap.Error(err))
			}
		}()
		logger.Info("Subscription runner registered in etcd", zap.String("address", instance.Addr()))
	}

	runner := subscription.NewRunner(a.Store, a.Users, a.Service, cfg.Subscriptions.MaxAttempts, loc, logger)

	if *once {
		if _, err := runner.RunDue(ctx, time.Now()); err != nil {
			logger.Error("Subscription run failed", zap.Error(err))
		}
		return
	}

	logger.Info("Starting subscription runner",
		zap.Duration("interval", cfg.Subscriptions.Interval),
		zap.String("location", loc.String()))
	runner.Run(ctx, cfg.Subscriptions.Interval)
	logger.Info("Subscription runner stopped")
}
