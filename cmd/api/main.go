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

	"github.com/safar/go-tienda/internal/config"
	"github.com/safar/go-tienda/internal/database"
	httpapi "github.com/safar/go-tienda/internal/http"
	"github.com/safar/go-tienda/internal/service"
	"github.com/safar/go-tienda/internal/store"
	"github.com/safar/go-tienda/internal/store/memstore"
	"github.com/safar/go-tienda/internal/store/mongostore"
	"github.com/safar/go-tienda/internal/store/pgstore"
	"github.com/safar/go-tienda/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing.Stdout, os.Stdout)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("connected to store", "driver", cfg.Store.Driver)

	products := service.NewProductService(st, logger)
	orders := service.NewOrderService(st, cfg.Orders.Strict, logger)

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Products: products,
			Orders:   orders,
			Store:    st,
			Logger:   logger,
			Server:   cfg.Server,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "strict_orders", cfg.Orders.Strict)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := st.Close(shutdownCtx); err != nil {
		logger.Error("close store", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("shutdown tracing", "error", err)
	}
	logger.Info("server stopped")

	return runErr
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case config.DriverMongo:
		db, err := database.NewMongo(connectCtx, &cfg.Mongo)
		if err != nil {
			return nil, err
		}
		s := mongostore.New(db)
		if err := s.CreateIndexes(connectCtx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("create indexes: %w", err)
		}
		return s, nil

	case config.DriverPostgres:
		db, err := database.NewPostgres(connectCtx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.MigrateUp(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return pgstore.New(db), nil

	case config.DriverMemory:
		return memstore.New(), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
