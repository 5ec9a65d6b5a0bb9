package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"proctorhub/internal/api"
	"proctorhub/internal/config"
	"proctorhub/internal/coordinator"
	"proctorhub/internal/metrics"
	"proctorhub/internal/reaper"
	"proctorhub/internal/registry"
	"proctorhub/internal/router"
	"proctorhub/internal/sampler"
	"proctorhub/internal/violations"
	"proctorhub/internal/websocket"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config      *config.Config
	store       *violations.Store
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	apiServer   *api.Server
	httpServer  *http.Server
}

// FUNCTIONAL DISCOVERY: Component initialization follows strict dependency order
// Store → Registry → Sampler → Sink → Router → Reaper → Coordinator → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize violation store (foundation layer)
	store, err := violations.NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize violation store: %w", err)
	}

	// STEP 2: Initialize session registry for connection tracking
	reg := registry.New()

	// STEP 3: Initialize monitoring sampler
	// Time-seeded RNG in production; tests inject a fixed seed
	smp := sampler.New(cfg.Proctoring, rand.New(rand.NewSource(time.Now().UnixNano())))

	// STEP 4: Initialize violation sink with store and observer broadcast
	sink := violations.NewSink(store, reg)

	// STEP 5: Initialize event router with frame rate limiting
	rtr := router.NewRouter(reg, router.NewFrameLimiter(cfg.Proctoring.FrameRate), sink)

	// STEP 6: Initialize health reaper
	rpr := reaper.New(cfg.Reaper)

	// STEP 7: Initialize coordinator for event loop processing
	coord := coordinator.New(cfg, reg, smp, rtr, rpr)

	// STEP 8: Initialize API server with query dependencies
	apiServer := api.NewServer(store, coord)

	// STEP 9: Initialize WebSocket handler
	wsHandler := websocket.NewHandler(coord, cfg.WebSocket)

	// STEP 10: Setup HTTP server with API, WebSocket, and metrics endpoints
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       store,
		registry:    reg,
		coordinator: coord,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// FUNCTIONAL DISCOVERY: Startup coordination ensures all components ready before serving
// Coordinator starts first to process events, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting ProctorHub application on %s", app.httpServer.Addr)

	// STEP 1: Start coordinator (background event processing)
	if err := app.coordinator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	// STEP 2: Start HTTP server (accepts connections)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		// Cleanup on startup failure
		app.coordinator.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("ProctorHub application started successfully")
		return nil
	case <-ctx.Done():
		// Context cancelled during startup
		app.coordinator.Stop()
		return ctx.Err()
	}
}

// FUNCTIONAL DISCOVERY: Shutdown coordination ensures proper resource cleanup
// Reverse dependency order: HTTP → Coordinator → Store
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down ProctorHub application")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Stop event processing
	if err := app.coordinator.Stop(); err != nil {
		log.Printf("Coordinator shutdown error: %v", err)
	}

	// STEP 3: Close violation store
	if err := app.store.Close(); err != nil {
		log.Printf("Violation store shutdown error: %v", err)
	}

	log.Printf("ProctorHub application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
