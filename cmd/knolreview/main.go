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

	"github.com/spf13/pflag"

	"github.com/conorfennell/knolreview/internal/config"
	"github.com/conorfennell/knolreview/internal/logging"
	"github.com/conorfennell/knolreview/internal/review"
	"github.com/conorfennell/knolreview/internal/storage"
	"github.com/conorfennell/knolreview/internal/sync"
	"github.com/conorfennell/knolreview/internal/web"
)

const gracefulShutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "knolreview: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.DBPath)

	syncer := &sync.Syncer{
		DB:       db,
		ReposDir: cfg.ReposDir,
		Logger:   logger,
		Progress: os.Stderr,
	}

	switch {
	case cfg.AddSource != "":
		return addSource(ctx, logger, db, cfg.AddSource)
	case cfg.Sync:
		return syncer.Run(ctx)
	}

	reviews := review.NewService(db, review.SystemClock{}, logger)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: web.NewServer(db, reviews, web.Options{
			Syncer:   syncer,
			Logger:   logger,
			DueLimit: cfg.DueLimit,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("got quit signal, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("server gracefully shut down")
	return nil
}

func addSource(ctx context.Context, logger *slog.Logger, db *storage.DB, path string) error {
	existing, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Info("source already exists", "id", existing.ID, "path", path)
		return nil
	}

	sourceType := storage.SourceType(path)
	id, err := db.InsertSource(ctx, path, sourceType)
	if err != nil {
		return err
	}
	logger.Info("source added", "id", id, "type", sourceType, "path", path)
	return nil
}
