// Redactd is a text anonymization daemon with an HTTP API.
//
// It detects sensitive entities (names, emails, phone numbers, projects,
// locations) in free text, replaces them with session-stable tokens, and can
// reverse the substitution later. Token relationships feed an intelligence
// bridge that is guarded by a circuit breaker.
//
// Configuration is loaded from ~/.config/redactd/config.yaml and REDACTD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	redactd
//
//	# Configure via environment
//	REDACTD_SERVER_PORT=9000 REDACTD_STORAGE_BACKEND=sqlite \
//	REDACTD_STORAGE_PATH=/var/lib/redactd redactd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/redactd/internal/breaker"
	"github.com/fyrsmithlabs/redactd/internal/config"
	"github.com/fyrsmithlabs/redactd/internal/detect"
	"github.com/fyrsmithlabs/redactd/internal/http"
	"github.com/fyrsmithlabs/redactd/internal/intelligence"
	"github.com/fyrsmithlabs/redactd/internal/logging"
	"github.com/fyrsmithlabs/redactd/internal/privacy"
	"github.com/fyrsmithlabs/redactd/internal/relation"
	"github.com/fyrsmithlabs/redactd/internal/session"
	"github.com/fyrsmithlabs/redactd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/redactd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  redactd           Start the redactd daemon\n")
			fmt.Fprintf(os.Stderr, "  redactd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("redactd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the redactd server and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting redactd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	tel, err := telemetry.Setup(&telemetry.Config{
		ServiceName:    "redactd",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	store, err := newStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("session store close failed", zap.Error(err))
		}
	}()

	detector, err := newDetector(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}

	relations := relation.NewDetector(&relation.Config{
		ProximityWindow: cfg.Privacy.ProximityWindow,
	})

	sessions := session.NewManager(store, logger.Named("session"))

	svc, err := privacy.NewService(
		&privacy.Config{
			DefaultLevel: detect.Level(cfg.Privacy.DefaultLevel),
			BatchWorkers: cfg.Privacy.BatchWorkers,
		},
		detector,
		relations,
		sessions,
		logger.Named("privacy"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize privacy service: %w", err)
	}

	breakers := breaker.NewRegistry(&breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout.Duration(),
	})

	var generator intelligence.Generator
	if cfg.Intelligence.Endpoint != "" {
		logger.Info("using remote intelligence generator", zap.String("endpoint", cfg.Intelligence.Endpoint))
		generator = intelligence.NewRemoteGenerator(cfg.Intelligence.Endpoint, cfg.Intelligence.APIKey.Value())
	}

	bridge := intelligence.NewBridge(
		&intelligence.Config{Timeout: cfg.Intelligence.Timeout.Duration()},
		generator,
		breakers,
		logger.Named("intelligence"),
	)

	srv, err := http.NewServer(svc, bridge, breakers, logger.Named("http"), &http.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		Gatherer:     tel.Registry(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// newStore builds the configured session store backend.
func newStore(cfg *config.Config, logger *zap.Logger) (session.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		logger.Info("using sqlite session store", zap.String("path", cfg.Storage.Path))
		return session.OpenSQLite(cfg.Storage.Path)
	default:
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil
	}
}

// newDetector compiles the built-in rules plus any custom rules from config.
func newDetector(cfg *config.Config) (*detect.Detector, error) {
	rules := detect.DefaultRules()
	rules = append(rules, cfg.Privacy.CustomRules...)
	return detect.New(&detect.Config{Rules: rules})
}
