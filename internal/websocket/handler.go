package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"proctorhub/internal/config"
	"proctorhub/pkg/interfaces"
	"proctorhub/pkg/types"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Portal frontend is served from a separate origin in every deployment
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Coordinator is the event sink the gateway delivers typed events into
// ARCHITECTURAL DISCOVERY: The gateway never reaches into registry or sampler
// state, every mutation goes through the coordinator's single entry point
type Coordinator interface {
	JoinStudent(conn interfaces.Conn, p types.JoinPayload) error
	LeaveStudent(p types.LeavePayload) error
	Disconnect(role, studentID, connID string)
	SubmitFrame(p *types.FramePayload) error
	SubmitViolation(p *types.ViolationPayload) error
	JoinObserver(conn interfaces.Conn) error
	LeaveObserver(connID string) error
	RefreshPool() error
	Heartbeat(studentID string)
	ReportClientError(studentID string, data json.RawMessage)
}

// Handler upgrades HTTP requests and pumps gateway events into the coordinator
type Handler struct {
	coordinator Coordinator
	cfg         config.WebSocketConfig
}

// NewHandler creates a gateway handler bound to one coordinator
func NewHandler(coordinator Coordinator, cfg config.WebSocketConfig) *Handler {
	return &Handler{
		coordinator: coordinator,
		cfg:         cfg,
	}
}

// HandleWebSocket validates the role parameter, upgrades the connection and
// starts the connection lifecycle goroutine.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'student' or 'admin'", http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.cfg.SendBuffer, h.cfg.WriteTimeout)

	go h.handleConnection(conn, role)
}

// handleConnection manages one connection's lifecycle: heartbeat monitoring,
// identification timeout and the read pump.
// FUNCTIONAL DISCOVERY: One goroutine per connection plus the ping ticker,
// cleanup is deferred so a panicking read never leaks registry entries
func (h *Handler) handleConnection(conn *Connection, role string) {
	defer func() {
		if conn.IsIdentified() {
			h.coordinator.Disconnect(conn.Role(), conn.StudentID(), conn.ID())
		}
		_ = conn.Close()
	}()

	// Sockets that never identify are cut loose after the identify timeout,
	// matching the portal clients which join immediately after connecting
	identifyTimer := time.AfterFunc(h.cfg.IdentifyTimeout, func() {
		if !conn.IsIdentified() {
			log.Printf("Connection timeout, no identification received: conn=%s", conn.ID())
			_ = conn.WriteEvent(types.EventConnectionTimeout, map[string]interface{}{
				"message": "Connection timeout - please refresh and try again",
			})
			_ = conn.Close()
		}
	})
	defer identifyTimer.Stop()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
			return err
		}
		// Pongs count as liveness for the health reaper
		if id := conn.StudentID(); id != "" {
			h.coordinator.Heartbeat(id)
		}
		return nil
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// Read pump
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: conn=%s err=%v", conn.ID(), err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		// FUNCTIONAL DISCOVERY: Per-event isolation, one malformed payload is
		// logged and skipped without tearing down the connection
		if err := h.dispatch(conn, role, data); err != nil {
			log.Printf("Event dispatch failed: conn=%s role=%s err=%v", conn.ID(), role, err)
		}
	}
}

// dispatch decodes one envelope and routes it into the coordinator
func (h *Handler) dispatch(conn *Connection, role string, data []byte) error {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ErrMalformedPayload
	}

	switch env.Event {
	case types.EventStudentJoin:
		if role != types.RoleStudent {
			return ErrRoleMismatch
		}
		var p types.JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return ErrMalformedPayload
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if err := conn.Identify(types.RoleStudent, p.StudentID); err != nil {
			return err
		}
		return h.coordinator.JoinStudent(conn, p)

	case types.EventStudentLeave:
		if role != types.RoleStudent {
			return ErrRoleMismatch
		}
		var p types.LeavePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return ErrMalformedPayload
		}
		return h.coordinator.LeaveStudent(p)

	case types.EventFrame:
		if role != types.RoleStudent {
			return ErrRoleMismatch
		}
		var p types.FramePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return ErrMalformedPayload
		}
		return h.coordinator.SubmitFrame(&p)

	case types.EventAIViolation:
		if role != types.RoleStudent {
			return ErrRoleMismatch
		}
		var p types.ViolationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return ErrMalformedPayload
		}
		return h.coordinator.SubmitViolation(&p)

	case types.EventAdminJoin:
		if role != types.RoleAdmin {
			return ErrRoleMismatch
		}
		if err := conn.Identify(types.RoleAdmin, ""); err != nil {
			return err
		}
		return h.coordinator.JoinObserver(conn)

	case types.EventAdminRefresh:
		if role != types.RoleAdmin {
			return ErrRoleMismatch
		}
		return h.coordinator.RefreshPool()

	case types.EventClientError:
		if id := conn.StudentID(); id != "" {
			h.coordinator.ReportClientError(id, env.Data)
		}
		return nil

	default:
		return ErrUnknownEvent
	}
}
