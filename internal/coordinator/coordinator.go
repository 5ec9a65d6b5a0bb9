package coordinator

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"proctorhub/internal/config"
	"proctorhub/internal/metrics"
	"proctorhub/internal/reaper"
	"proctorhub/internal/registry"
	"proctorhub/internal/router"
	"proctorhub/internal/sampler"
	"proctorhub/pkg/interfaces"
	"proctorhub/pkg/types"
)

// Coordinator is the single logical writer for all proctoring state
// ARCHITECTURAL DISCOVERY: Every registry mutation, sampling decision and
// eviction is applied by one goroutine draining a typed mailbox, so joins,
// leaves and resamples can never interleave into a torn observed set
type Coordinator struct {
	cfg      *config.Config
	registry *registry.Registry
	sampler  *sampler.Sampler
	router   *router.Router
	reaper   *reaper.Reaper

	// FUNCTIONAL DISCOVERY: 1024 buffer absorbs frame bursts from a full
	// exam hall without blocking gateway read pumps
	events   chan event
	shutdown chan struct{}

	running      bool
	nextRotation time.Time
	mu           sync.RWMutex
}

// New creates a coordinator owning the given components
func New(cfg *config.Config, reg *registry.Registry, smp *sampler.Sampler, rtr *router.Router, rpr *reaper.Reaper) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		registry: reg,
		sampler:  smp,
		router:   rtr,
		reaper:   rpr,
		events:   make(chan event, 1024),
		shutdown: make(chan struct{}),
	}
}

// Start begins coordinator processing
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	log.Println("Starting proctoring coordinator...")

	go c.run(ctx)

	return nil
}

// Stop shuts down the loop; the rotation and reap tickers die with it
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	c.running = false

	log.Println("Stopping proctoring coordinator...")

	select {
	case <-c.shutdown:
		// already closed
	default:
		close(c.shutdown)
	}

	return nil
}

// submit queues an event without ever blocking a gateway read pump
func (c *Coordinator) submit(ev event) error {
	c.mu.RLock()
	if !c.running {
		c.mu.RUnlock()
		return ErrNotRunning
	}
	c.mu.RUnlock()

	select {
	case c.events <- ev:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// JoinStudent registers a student session from the gateway
func (c *Coordinator) JoinStudent(conn interfaces.Conn, p types.JoinPayload) error {
	return c.submit(joinEvent{conn: conn, payload: p})
}

// LeaveStudent handles an explicit leave event
func (c *Coordinator) LeaveStudent(p types.LeavePayload) error {
	return c.submit(leaveEvent{studentID: p.StudentID, reason: types.ReasonExplicitLeave})
}

// Disconnect handles a gateway-level connection teardown
func (c *Coordinator) Disconnect(role, studentID, connID string) {
	var err error
	if role == types.RoleAdmin {
		err = c.submit(observerLeaveEvent{connID: connID})
	} else if studentID != "" {
		// connID scoping keeps a stale disconnect from removing the
		// session a reconnecting student just re-established
		err = c.submit(leaveEvent{studentID: studentID, reason: types.ReasonDisconnect, connID: connID})
	}
	if err != nil {
		// The health reaper is the backstop for lost disconnects
		log.Printf("Failed to queue disconnect: role=%s student=%s err=%v", role, studentID, err)
	}
}

// SubmitFrame routes one webcam frame
func (c *Coordinator) SubmitFrame(p *types.FramePayload) error {
	return c.submit(frameEvent{payload: p})
}

// SubmitViolation routes one AI violation
func (c *Coordinator) SubmitViolation(p *types.ViolationPayload) error {
	return c.submit(violationEvent{payload: p})
}

// JoinObserver registers an admin observer and hydrates it
func (c *Coordinator) JoinObserver(conn interfaces.Conn) error {
	return c.submit(observerJoinEvent{conn: conn})
}

// LeaveObserver removes an admin observer
func (c *Coordinator) LeaveObserver(connID string) error {
	return c.submit(observerLeaveEvent{connID: connID})
}

// RefreshPool forces an immediate resample (admin request)
func (c *Coordinator) RefreshPool() error {
	return c.submit(refreshEvent{})
}

// Heartbeat refreshes session liveness.
// TECHNICAL DISCOVERY: Touches the timestamp directly instead of queueing,
// a single-field update under the registry lock needs no loop ordering
func (c *Coordinator) Heartbeat(studentID string) {
	c.registry.TouchHeartbeat(studentID)
}

// ReportClientError relays a client-reported error to observers
func (c *Coordinator) ReportClientError(studentID string, data json.RawMessage) {
	if err := c.submit(clientErrorEvent{studentID: studentID, data: data}); err != nil {
		log.Printf("Failed to queue client error: student=%s err=%v", studentID, err)
	}
}

// Stats returns coordinator statistics for the admin API
func (c *Coordinator) Stats() map[string]interface{} {
	stats := c.registry.Stats()

	c.mu.RLock()
	next := c.nextRotation
	c.mu.RUnlock()

	return map[string]interface{}{
		"active_sessions":   stats["active_sessions"],
		"observed_count":    stats["observed_count"],
		"active_observers":  stats["active_observers"],
		"sample_rate":       c.cfg.Proctoring.SampleRate,
		"rotation_interval": c.cfg.Proctoring.RotationInterval.String(),
		"next_rotation":     next,
	}
}

// run is the main coordination loop
func (c *Coordinator) run(ctx context.Context) {
	defer log.Println("Coordinator processing stopped")

	rotation := time.NewTicker(c.cfg.Proctoring.RotationInterval)
	defer rotation.Stop()
	reap := time.NewTicker(c.cfg.Reaper.CheckInterval)
	defer reap.Stop()

	for {
		select {
		case ev := <-c.events:
			c.handle(ctx, ev)

		case <-rotation.C:
			if c.registry.SessionCount() > 0 {
				log.Println("Rotating observed students")
				c.resample()
			}

		case <-reap.C:
			c.reap(time.Now())

		case <-c.shutdown:
			log.Println("Coordinator shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Coordinator context cancelled")
			return
		}
	}
}

// handle applies one event; failures are isolated per event
func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case joinEvent:
		c.handleJoin(e)

	case leaveEvent:
		c.handleLeave(e)

	case frameEvent:
		c.registry.TouchHeartbeat(e.payload.StudentID)
		c.router.RouteFrame(e.payload)

	case violationEvent:
		c.registry.TouchHeartbeat(e.payload.StudentID)
		// FUNCTIONAL DISCOVERY: The store write is the one genuine blocking
		// boundary, it runs off-loop so persistence latency never stalls
		// frame routing for other students
		go func(p *types.ViolationPayload) {
			if err := c.router.RouteViolation(ctx, p); err != nil {
				log.Printf("Violation routing failed: student=%s test=%s err=%v", p.StudentID, p.TestID, err)
			}
		}(e.payload)

	case observerJoinEvent:
		c.handleObserverJoin(e)

	case observerLeaveEvent:
		c.registry.RemoveObserver(e.connID)
		metrics.ActiveObservers.Set(float64(c.registry.ObserverCount()))
		log.Printf("Observer left monitoring: conn=%s", e.connID)

	case refreshEvent:
		if c.registry.SessionCount() > 0 {
			log.Println("Observer requested monitoring pool refresh")
			c.resample()
		}

	case reapRecheckEvent:
		c.reap(time.Now())

	case clientErrorEvent:
		c.registry.BroadcastToObservers(types.EventStudentError, types.StudentError{
			StudentID: e.studentID,
			Error:     e.data,
			Timestamp: time.Now(),
		})
	}
}

func (c *Coordinator) handleJoin(e joinEvent) {
	replaced, err := c.registry.RegisterSession(e.conn, e.payload)
	if err != nil {
		log.Printf("Session registration failed: student=%s err=%v", e.payload.StudentID, err)
		return
	}

	log.Printf("Student joined proctoring: student=%s name=%s test=%s replaced=%v",
		e.payload.StudentID, e.payload.StudentName, e.payload.TestID, replaced)

	// Resample before the joined broadcast so isMonitored is already settled
	c.resample()

	if snap, ok := c.registry.Snapshot(e.payload.StudentID); ok {
		c.registry.BroadcastToObservers(types.EventStudentJoined, snap)
	}
}

func (c *Coordinator) handleLeave(e leaveEvent) {
	var snap types.SessionSnapshot
	var ok bool
	if e.connID != "" {
		snap, ok = c.registry.RemoveSessionIfConn(e.studentID, e.connID)
	} else {
		snap, ok = c.registry.RemoveSession(e.studentID)
	}
	if !ok {
		// Removing an unknown student is a no-op, never an error
		return
	}

	c.router.ForgetStudent(e.studentID)

	now := time.Now()
	log.Printf("Student left proctoring: student=%s reason=%s duration=%v",
		e.studentID, e.reason, now.Sub(snap.StartTime))

	c.registry.BroadcastToObservers(types.EventStudentLeft, types.StudentLeft{
		StudentID:       snap.StudentID,
		StudentName:     snap.StudentName,
		Reason:          e.reason,
		Timestamp:       now,
		SessionDuration: now.Sub(snap.StartTime).Milliseconds(),
	})

	if c.registry.SessionCount() > 0 {
		c.resample()
	} else {
		metrics.ActiveSessions.Set(0)
		metrics.ObservedSessions.Set(0)
	}
}

func (c *Coordinator) handleObserverJoin(e observerJoinEvent) {
	if err := c.registry.RegisterObserver(e.conn); err != nil {
		log.Printf("Observer registration failed: conn=%s err=%v", e.conn.ID(), err)
		return
	}
	metrics.ActiveObservers.Set(float64(c.registry.ObserverCount()))

	log.Printf("Observer joined monitoring: conn=%s", e.conn.ID())

	stats := c.registry.Stats()

	if err := e.conn.WriteEvent(types.EventActiveSessions, c.registry.ListSessions()); err != nil {
		log.Printf("Failed to hydrate observer %s: %v", e.conn.ID(), err)
	}
	if err := e.conn.WriteEvent(types.EventMonitoringConfig, types.MonitoringConfig{
		SampleRate:       c.cfg.Proctoring.SampleRate,
		FrameRate:        c.cfg.Proctoring.FrameRate,
		RotationInterval: int(c.cfg.Proctoring.RotationInterval.Minutes()),
		TotalStudents:    stats["active_sessions"],
		MonitoredCount:   stats["observed_count"],
	}); err != nil {
		log.Printf("Failed to send monitoring config to %s: %v", e.conn.ID(), err)
	}
}

// resample recomputes the observed set wholesale and fans the decisions out.
// Zero sessions is a no-op with no broadcasts.
func (c *Coordinator) resample() {
	ids := c.registry.StudentIDs()
	if len(ids) == 0 {
		return
	}

	observed := c.sampler.Select(ids)
	targets := c.registry.ApplyObservedSet(observed)

	for _, t := range targets {
		if t.Conn == nil {
			continue
		}
		if err := t.Conn.WriteEvent(types.EventMonitoringStatus, types.MonitoringStatus{
			IsMonitored: t.IsObserved,
			FrameRate:   c.cfg.Proctoring.FrameRate,
		}); err != nil {
			log.Printf("Failed to send monitoring status to %s: %v", t.StudentID, err)
		}
	}

	next := time.Now().Add(c.cfg.Proctoring.RotationInterval)
	c.mu.Lock()
	c.nextRotation = next
	c.mu.Unlock()

	c.registry.BroadcastToObservers(types.EventPoolUpdated, types.PoolUpdate{
		TotalStudents:     len(ids),
		MonitoredCount:    len(observed),
		MonitoredStudents: observed,
		SampleRate:        c.cfg.Proctoring.SampleRate,
		NextRotation:      next,
	})

	metrics.Resamples.Inc()
	metrics.ActiveSessions.Set(float64(len(ids)))
	metrics.ObservedSessions.Set(float64(len(observed)))

	log.Printf("Monitoring pool updated: total=%d observed=%d", len(ids), len(observed))
}

// reap sweeps for stale sessions, probing suspects and evicting the dead
func (c *Coordinator) reap(now time.Time) {
	states := c.registry.SessionStates()
	if len(states) == 0 {
		return
	}

	result := c.reaper.Sweep(now, states)

	for _, studentID := range result.Probe {
		if conn, ok := c.registry.SessionConn(studentID); ok {
			if err := conn.WriteEvent(types.EventHealthCheck, types.HealthProbe{Timestamp: now}); err != nil {
				log.Printf("Liveness probe failed: student=%s err=%v", studentID, err)
			}
		}
	}
	if len(result.Probe) > 0 {
		// SUSPECT sessions get rechecked once the grace period elapses
		// instead of waiting for the next full sweep
		time.AfterFunc(c.reaper.GracePeriod(), func() {
			if err := c.submit(reapRecheckEvent{}); err != nil && err != ErrNotRunning {
				log.Printf("Failed to queue reap recheck: %v", err)
			}
		})
	}

	evicted := 0
	for _, studentID := range result.Evict {
		if conn, ok := c.registry.SessionConn(studentID); ok {
			go func(conn interfaces.Conn) { _ = conn.Close() }(conn)
		}

		snap, ok := c.registry.RemoveSession(studentID)
		if !ok {
			continue
		}
		evicted++
		c.router.ForgetStudent(studentID)
		metrics.SessionsEvicted.Inc()

		log.Printf("Evicted stale session: student=%s", studentID)

		evictTime := time.Now()
		c.registry.BroadcastToObservers(types.EventStudentLeft, types.StudentLeft{
			StudentID:       snap.StudentID,
			StudentName:     snap.StudentName,
			Reason:          types.ReasonConnectionTimeout,
			Timestamp:       evictTime,
			SessionDuration: evictTime.Sub(snap.StartTime).Milliseconds(),
		})
	}

	// One resample per sweep regardless of how many sessions were evicted
	if evicted > 0 {
		if c.registry.SessionCount() > 0 {
			c.resample()
		} else {
			metrics.ActiveSessions.Set(0)
			metrics.ObservedSessions.Set(0)
		}
	}
}
