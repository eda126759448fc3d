package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spam-detection/backend/internal/api"
	"github.com/spam-detection/backend/internal/config"
	"github.com/spam-detection/backend/internal/engine"
	"github.com/spam-detection/backend/internal/model"
	"github.com/spam-detection/backend/internal/storage"
	"github.com/spam-detection/backend/internal/throttle"
)

var (
	cfg   *config.Config
	entry *logrus.Entry
)

// rootCmd serves the API when run without a subcommand
var rootCmd = &cobra.Command{
	Use:   "spam-api",
	Short: "Spam detection API service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		entry = newLogger(cfg.LogLevel)
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Train or load the model and serve the HTTP API",
	RunE:  runServe,
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(wordStatsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger.WithField("service", "spam-api")
}

func openStorage(c config.StorageConfig) (storage.Storage, error) {
	switch c.Backend {
	case config.BackendFile:
		return storage.NewFileStorage(c.Dir)
	case config.BackendBadger:
		return storage.NewBadgerStorage(c.Dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	entry.Info("Starting Spam Detection API Service")

	store, err := openStorage(cfg.Storage)
	if err != nil {
		entry.WithError(err).Error("Failed to initialize storage")
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.NewEngine(cfg, entry, store, model.NewRegistry(nil))
	if err := eng.InitModel(ctx); err != nil {
		entry.WithError(err).Error("Failed to initialize model")
		return err
	}

	var limiter *throttle.Manager
	if cfg.Throttle.Enabled {
		limiter = throttle.NewManager(cfg.Throttle, entry.WithField("component", "throttle"))
		if err := limiter.Start(); err != nil {
			return err
		}
		defer limiter.Stop()
	}

	server := api.NewServer(eng, limiter, entry)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entry.Infof("Spam Detection API ready on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		entry.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
