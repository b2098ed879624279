/*
main.go - Application entry point

PURPOSE:

	Initializes and starts the maritime compliance engine server.
	Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
 1. Parse command-line flags
 2. Build the structured logger
 3. Initialize SQLite store
 4. Load policy versions (file or baseline defaults)
 5. Wire machine, exporter, handler, router
 6. Start server with graceful shutdown

COMMAND-LINE FLAGS:

	-port      HTTP server port (default: 8080)
	-db        SQLite database path (default: compliance.db)
	           Use ":memory:" for in-memory database
	-policies  YAML policy file; omitted means the built-in baseline
	-dev       Human-readable development logging

GRACEFUL SHUTDOWN:

	On SIGINT/SIGTERM:
	1. Stop accepting new connections
	2. Wait for active requests to complete (30s timeout)
	3. Close database connection
	4. Exit

EXAMPLES:

	# Run with file database and policy file
	./server -db="./data/compliance.db" -policies="./policies.yaml"

	# Run with in-memory database
	./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - policy/file.go: Policy file format
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nautilus/compliance-engine/api"
	"github.com/nautilus/compliance-engine/engine"
	"github.com/nautilus/compliance-engine/export"
	"github.com/nautilus/compliance-engine/policy"
	"github.com/nautilus/compliance-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "compliance.db", "SQLite database path")
	policyPath := flag.String("policies", "", "YAML policy file (empty = built-in baseline)")
	dev := flag.Bool("dev", false, "human-readable development logging")
	flag.Parse()

	log, err := buildLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Load policies
	registry, err := loadPolicies(*policyPath)
	if err != nil {
		log.Fatal("failed to load policies", zap.Error(err))
	}

	// Wire dependencies
	cfg, err := registry.Resolve(time.Now().UTC())
	if err != nil {
		log.Fatal("no effective policy version", zap.Error(err))
	}
	machine := engine.NewMachine(store, registry)
	exporter := export.NewExporter(store, store, cfg.Currency)
	handler := api.NewHandler(machine, store, registry, exporter, log)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath),
			zap.String("policy_version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadPolicies(path string) (*policy.Registry, error) {
	if path == "" {
		return policy.NewRegistry(policy.Default())
	}
	configs, err := policy.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return policy.NewRegistry(configs...)
}
