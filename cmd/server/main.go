/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fuel station engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load config (.env, YAML, FUEL_* env)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Create the station service and API handler
  5. Start the HTTP server and the digest scheduler under one errgroup

COMMAND-LINE FLAGS:
  -config  YAML config file (optional, also FUEL_CONFIG_FILE)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/fuel.db"
  ./server -db=":memory:" -port=3000
  FUEL_JWT_SECRET=s3cret FUEL_SHIFT_TOLERANCE=5 ./server

SEE ALSO:
  - config/config.go: All settings and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
  - scheduler/scheduler.go: Digest job
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/fuel-engine/api"
	"github.com/warp/fuel-engine/config"
	"github.com/warp/fuel-engine/logging"
	"github.com/warp/fuel-engine/scheduler"
	"github.com/warp/fuel-engine/station"
	"github.com/warp/fuel-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	tolerances, err := cfg.Tolerances()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	svc := station.NewService(store, station.Options{
		Tolerances: &tolerances,
		Thresholds: cfg.Stock,
		Logger:     logging.Named(logger, "station"),
	})

	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, 0)
	if !auth.Enabled() {
		logger.Warn("FUEL_JWT_SECRET not set; mutating routes are unauthenticated")
	}
	handler := api.NewHandler(svc, auth, store, logging.Named(logger, "http"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Digest.Cron != "" {
		sched := scheduler.New(cfg.Digest.Cron, svc, nil, logging.Named(logger, "scheduler"))
		if err := sched.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			sched.Stop()
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Database.Path),
			zap.String("shift_tolerance", tolerances.Shift.String()),
			zap.String("sales_tolerance", tolerances.Sales.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
