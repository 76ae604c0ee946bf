/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bank ledger server: configuration, logger,
  store selection, dependency wiring, graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment config (.env honored)
  2. Build the zap logger and install it globally
  3. Open the selected store (memory | sqlite | postgres)
  4. Wire bank.Service and the HTTP router
  5. Serve with graceful shutdown on SIGINT/SIGTERM

CONFIGURATION:
  See config/config.go for the full variable list; -port and -db flags
  override PORT and SQLITE_PATH for quick local runs.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/bank-ledger/api"
	"github.com/warp/bank-ledger/bank"
	"github.com/warp/bank-ledger/config"
	"github.com/warp/bank-ledger/ledger"
	memstore "github.com/warp/bank-ledger/ledger/store"
	"github.com/warp/bank-ledger/store/postgres"
	"github.com/warp/bank-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path (\":memory:\" for in-memory)")
	flag.Parse()

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	st, closeStore, err := openStore(cfg, *dbPath)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.Driver), zap.Error(err))
	}
	defer closeStore()

	svc := bank.NewService(st, cfg.Policy(), bank.WithLogger(logger))
	router := api.NewRouter(api.NewHandler(svc))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.Int("port", *port),
			zap.String("driver", cfg.Driver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(cfg *config.Config, sqlitePath string) (ledger.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		return memstore.NewMemory(), func() {}, nil
	case "postgres":
		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "sqlite":
		st, err := sqlite.New(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
