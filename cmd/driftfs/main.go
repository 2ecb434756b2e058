package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/driftfs/driftfs/internal/httpd"
	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/owner"
	"github.com/driftfs/driftfs/pkg/config"
	"github.com/driftfs/driftfs/pkg/metrics"
)

// runBootstrap creates a tenant with its first admin and exits. The spec
// string is owner:admin:password.
func runBootstrap(ctx context.Context, pool *owner.Pool, spec string) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		log.Fatalf("Invalid -bootstrap value, expected owner:admin:password")
	}

	if err := pool.Bootstrap(ctx, parts[0], parts[1], parts[2]); err != nil {
		log.Fatalf("Failed to bootstrap tenant %q: %v", parts[0], err)
	}
	logger.Info("Tenant %q bootstrapped with admin %q", parts[0], parts[1])
}

func main() {
	configPath := flag.String("config", "", "Path to config file (empty uses the default location)")
	logLevel := flag.String("log-level", "", "Override configured log level (DEBUG, INFO, WARN, ERROR)")
	bootstrap := flag.String("bootstrap", "", "Bootstrap a tenant as owner:admin:password, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(*logLevel)
	}

	// Configure logger
	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("DriftFS - Multi-Tenant Virtual Filesystem Server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Persistence backend: %s", cfg.Persistence.Type)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics collection enabled")
	}

	persistStore, err := config.CreatePersistStore(ctx, &cfg.Persistence)
	if err != nil {
		log.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer func() {
		if err := persistStore.Close(); err != nil {
			logger.Error("Failed to close snapshot store: %v", err)
		}
	}()

	pool, err := owner.NewPool(persistStore, owner.Options{
		Defaults: cfg.Limits.Limits(),
	})
	if err != nil {
		log.Fatalf("Failed to create tenant pool: %v", err)
	}

	if *bootstrap != "" {
		runBootstrap(ctx, pool, *bootstrap)
		return
	}

	secret := []byte(cfg.Sessions.Secret)
	srv := httpd.NewServer(pool,
		httpd.NewSessionManager(secret, cfg.Sessions.TTL, cfg.Sessions.MaxSessions),
		httpd.NewFSTokenCodec(secret),
		httpd.Config{
			Listen:          cfg.Server.Listen,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			MaxBodyBytes:    cfg.Server.MaxBodyBytes,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			LoginRate:       cfg.Server.LoginRate,
			LoginBurst:      cfg.Server.LoginBurst,
		})

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port})
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Log server configuration
	logger.Info("Server configuration:")
	logger.Info("  Listen: %s", cfg.Server.Listen)
	logger.Info("  Read timeout: %v", cfg.Server.ReadTimeout)
	logger.Info("  Write timeout: %v", cfg.Server.WriteTimeout)
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)
	logger.Info("  Max body bytes: %d", cfg.Server.MaxBodyBytes)
	logger.Info("  Session TTL: %v", cfg.Sessions.TTL)
	logger.Info("  Max sessions: %d", cfg.Sessions.MaxSessions)

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on %s. Press Ctrl+C to stop.", cfg.Server.Listen)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}
