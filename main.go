package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"churnpredict/config"
	"churnpredict/db"
	chttp "churnpredict/http"
	"churnpredict/logging"
	"churnpredict/ml"
	"churnpredict/monitoring"
	"churnpredict/pipeline"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Load("")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.CloseDB()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Model store, runner and current model
	store, err := pipeline.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open model store", zap.Error(err))
	}
	runner := &pipeline.Runner{
		Store:   store,
		Sink:    pipeline.NewSink(cfg, logger),
		Logger:  logger,
		Options: pipeline.OptionsFrom(cfg),
	}

	hub := monitoring.NewEventHub(logger)
	go hub.Run(ctx)

	handle := ml.NewModelHandle()
	api := chttp.NewAPI(handle, runner, chttp.RetrainConfig{
		TrainPath: cfg.Data.TrainPath,
		TestPath:  cfg.Data.TestPath,
		ModelKey:  cfg.Model.Path,
	}, hub, logger)

	if model, err := store.Retrieve(ctx, cfg.Model.Path); err != nil {
		logger.Warn("no model loaded; /predict unavailable until retrain",
			zap.String("model", cfg.Model.Path), zap.Error(err))
	} else {
		loaded := api.Install(model, cfg.Model.Path)
		logger.Info("model loaded", zap.String("model", cfg.Model.Path), zap.String("version", loaded.Version))
	}

	// Hot reload only applies to local artifacts.
	if cfg.Model.S3.Bucket == "" {
		go func() {
			if err := ml.WatchArtifact(ctx, cfg.Model.Path, handle, logger, api.OnModelSwap); err != nil {
				logger.Warn("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	// 4. Start HTTP server
	serverConfig := chttp.DefaultServerConfig()
	serverConfig.Port = cfg.Http.Port
	server := chttp.NewServer(serverConfig, api, hub, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	api.Wait()
	logger.Info("exiting")
}
