package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proctorhub/internal/app"
	"proctorhub/internal/config"
)

// shutdownTimeout bounds graceful drain of in-flight connections
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
// Signal handling ensures graceful shutdown in production environments
func run() error {
	// STEP 1: Load configuration with precedence (file > env > defaults)
	configPath := flag.String("config", os.Getenv("PROCTORHUB_CONFIG_FILE"), "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 3: Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// STEP 4: Start application in background
	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	// STEP 5: Wait for shutdown signal or startup failure
	select {
	case sig := <-signalCh:
		log.Printf("Received signal %v, initiating shutdown", sig)
	case err := <-appErrCh:
		return fmt.Errorf("application startup failed: %w", err)
	}

	// STEP 6: Graceful shutdown with bounded drain window
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}
