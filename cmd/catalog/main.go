package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/freshcart/pkg/catalog"
	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/logging"
	"github.com/example/freshcart/pkg/repository"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	file := flag.String("file", "config/products.sample.json", "JSON array of products to upsert")
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

	if cfg.Storage.Driver != config.DriverMongo {
		logger.Fatal("Catalog import needs storage.driver mongo", zap.String("driver", cfg.Storage.Driver))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer repo.Close(context.Background())

	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure indexes", zap.Error(err))
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal("Failed to open catalog file", zap.Error(err))
	}
	defer f.Close()

	report, err := catalog.Import(ctx, repo, f, logger)
	if err != nil {
		logger.Fatal("Catalog import failed", zap.Error(err))
	}
	if len(report.Rejected) > 0 {
		logger.Warn("Some products were rejected", zap.Strings("product_ids", report.Rejected))
	}
}
