package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"proctorhub/pkg/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connPair returns a server-side Connection and the raw client socket
func connPair(t *testing.T) (*Connection, *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		serverConns <- wsConn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	var serverSide *websocket.Conn
	select {
	case serverSide = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for server-side connection")
	}

	conn := NewConnection(serverSide, 16, time.Second)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, client
}

func TestConnection_WriteEventDeliversEnvelope(t *testing.T) {
	conn, client := connPair(t)

	err := conn.WriteEvent(types.EventMonitoringStatus, types.MonitoringStatus{
		IsMonitored: true,
		FrameRate:   2,
	})
	if err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if env.Event != types.EventMonitoringStatus {
		t.Errorf("Expected event %s, got %s", types.EventMonitoringStatus, env.Event)
	}

	var status types.MonitoringStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if !status.IsMonitored || status.FrameRate != 2 {
		t.Errorf("Unexpected payload: %+v", status)
	}
}

func TestConnection_WriteOrderPreserved(t *testing.T) {
	conn, client := connPair(t)

	for i := 0; i < 10; i++ {
		if err := conn.WriteEvent(types.EventHealthCheck, map[string]int{"seq": i}); err != nil {
			t.Fatalf("WriteEvent %d failed: %v", i, err)
		}
	}

	for i := 0; i < 10; i++ {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d failed: %v", i, err)
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("Bad envelope at %d: %v", i, err)
		}
		var payload map[string]int
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("Bad payload at %d: %v", i, err)
		}
		if payload["seq"] != i {
			t.Fatalf("Out-of-order delivery: expected seq %d, got %d", i, payload["seq"])
		}
	}
}

func TestConnection_WriteEventUnmarshalableData(t *testing.T) {
	conn, _ := connPair(t)

	if err := conn.WriteEvent("bad", make(chan int)); err != ErrInvalidJSON {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_IdentifyOnce(t *testing.T) {
	conn, _ := connPair(t)

	if conn.IsIdentified() {
		t.Error("New connection should start unidentified")
	}

	if err := conn.Identify(types.RoleStudent, "s1"); err != nil {
		t.Fatalf("First Identify failed: %v", err)
	}
	if !conn.IsIdentified() {
		t.Error("Connection should be identified after Identify")
	}
	if conn.Role() != types.RoleStudent || conn.StudentID() != "s1" {
		t.Errorf("Identity not recorded: role=%s student=%s", conn.Role(), conn.StudentID())
	}

	if err := conn.Identify(types.RoleStudent, "s2"); err != ErrAlreadyIdentified {
		t.Errorf("Second Identify should return ErrAlreadyIdentified, got %v", err)
	}
	if conn.StudentID() != "s1" {
		t.Error("Rejected re-identification must not change identity")
	}
}

func TestConnection_CloseLifecycle(t *testing.T) {
	conn, _ := connPair(t)

	if !conn.IsAlive() {
		t.Error("New connection should be alive")
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if conn.IsAlive() {
		t.Error("Closed connection should not report alive")
	}

	// Idempotent
	if err := conn.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	if err := conn.WriteEvent(types.EventHealthCheck, nil); err != ErrConnectionClosed {
		t.Errorf("WriteEvent after Close should return ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_ConcurrentWritesRacingClose(t *testing.T) {
	conn, client := connPair(t)

	// Keep the client draining so the server-side writer is not backpressured
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				// Errors are expected once Close lands; a panic is the failure
				_ = conn.WriteEvent(types.EventHealthCheck, types.HealthProbe{Timestamp: time.Now()})
			}
		}()
	}

	time.Sleep(time.Millisecond)
	_ = conn.Close()
	wg.Wait()

	if err := conn.WriteEvent(types.EventHealthCheck, nil); err != ErrConnectionClosed {
		t.Errorf("WriteEvent after Close should return ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_UniqueIDs(t *testing.T) {
	a, _ := connPair(t)
	b, _ := connPair(t)

	if a.ID() == "" || b.ID() == "" {
		t.Fatal("Connection IDs should be non-empty")
	}
	if a.ID() == b.ID() {
		t.Error("Connections should get distinct IDs")
	}
}
