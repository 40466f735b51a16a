package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"churnpredict/config"
	"churnpredict/db"
	"churnpredict/logging"
	"churnpredict/ml"
	"churnpredict/webapp"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	predictions, closeLog, err := openPredictionLog(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open prediction log", zap.Error(err))
	}
	defer closeLog()

	handle := ml.NewModelHandle()
	if model, err := ml.LoadModel(cfg.Model.Path); err != nil {
		logger.Warn("no model loaded yet", zap.String("model", cfg.Model.Path), zap.Error(err))
	} else {
		handle.Swap(model, cfg.Model.Path)
	}
	go func() {
		if err := ml.WatchArtifact(ctx, cfg.Model.Path, handle, logger, nil); err != nil {
			logger.Warn("artifact watcher stopped", zap.Error(err))
		}
	}()

	app, err := webapp.NewServer(handle, predictions, logger)
	if err != nil {
		logger.Fatal("failed to build webapp", zap.Error(err))
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Webapp.Port),
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting webapp", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("webapp failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("webapp forced to shutdown", zap.Error(err))
	}
}

// openPredictionLog uses Postgres when a URL is configured and the local
// SQLite database otherwise.
func openPredictionLog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (webapp.PredictionLog, func(), error) {
	if cfg.Database.PostgresURL != "" {
		repo, err := db.NewPredictionRepository(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("logging predictions to postgres")
		return repo, repo.Close, nil
	}
	if err := db.InitDB(cfg.Database.Path); err != nil {
		return nil, nil, err
	}
	logger.Info("logging predictions to sqlite", zap.String("path", cfg.Database.Path))
	return db.PredictionLog{}, func() { db.CloseDB() }, nil
}
