package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"proctorhub/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "proctorhub.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	return cfg
}

// freePort grabs an ephemeral port and releases it for the server to bind
func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

func TestApplication_ConstructorRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Port = -1

	application, err := NewApplication(cfg)
	if err == nil {
		t.Error("Constructor should reject invalid configuration")
	}
	if application != nil {
		t.Error("Constructor should not return an application for invalid config")
	}
}

func TestApplication_ConstructorWiresComponents(t *testing.T) {
	cfg := testConfig(t)

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer func() { _ = application.store.Close() }()

	if application.GetAddr() == "" {
		t.Error("Application should expose its server address")
	}
	if application.coordinator == nil || application.registry == nil {
		t.Error("Core components should be initialized")
	}
}

func TestApplication_StartStopCycle(t *testing.T) {
	cfg := testConfig(t)

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Server should be accepting connections
	conn, err := net.DialTimeout("tcp", application.GetAddr(), 2*time.Second)
	if err != nil {
		t.Errorf("Server not reachable after Start: %v", err)
	} else {
		_ = conn.Close()
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := application.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
