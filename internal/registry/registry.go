package registry

import (
	"log"
	"sort"
	"sync"
	"time"

	"proctorhub/pkg/interfaces"
	"proctorhub/pkg/types"
)

// session is the registry's mutable record of one proctored student
type session struct {
	studentID     string
	studentName   string
	testID        string
	testTitle     string
	startTime     time.Time
	isObserved    bool
	lastHeartbeat time.Time
	conn          interfaces.Conn
}

// SessionState is the health reaper's view of a session
type SessionState struct {
	StudentID     string
	LastHeartbeat time.Time
	Alive         bool
}

// StatusTarget pairs a student connection with its fresh sampling decision
type StatusTarget struct {
	StudentID  string
	Conn       interfaces.Conn
	IsObserved bool
}

// Registry holds the authoritative set of proctoring sessions and observers
// ARCHITECTURAL DISCOVERY: Pure state plus accessors, all mutation ordering
// is enforced by the coordinator loop that owns this instance
// TECHNICAL DISCOVERY: RWMutex still guards the maps because hydration reads
// (ListSessions, Stats) run on HTTP goroutines concurrent with the loop
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*session        // studentID -> session
	observers map[string]interfaces.Conn // connectionID -> admin connection
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		sessions:  make(map[string]*session),
		observers: make(map[string]interfaces.Conn),
	}
}

// RegisterSession inserts or replaces the session keyed by student ID and
// returns whether a previous session was replaced.
// FUNCTIONAL DISCOVERY: Last-writer-wins on reconnect, the stale connection
// is closed asynchronously so registration never blocks on socket teardown
func (r *Registry) RegisterSession(conn interfaces.Conn, p types.JoinPayload) (replaced bool, err error) {
	if conn == nil {
		return false, ErrNilConnection
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[p.StudentID]; ok && existing.conn != nil && existing.conn.ID() != conn.ID() {
		replaced = true
		stale := existing.conn
		go func() {
			if err := stale.Close(); err != nil {
				log.Printf("Failed to close replaced connection: student=%s err=%v", p.StudentID, err)
			}
		}()
	}

	r.sessions[p.StudentID] = &session{
		studentID:     p.StudentID,
		studentName:   p.StudentName,
		testID:        p.TestID,
		testTitle:     p.TestTitle,
		startTime:     now,
		isObserved:    false,
		lastHeartbeat: now,
		conn:          conn,
	}

	return replaced, nil
}

// RemoveSession deletes the session if present and returns its final snapshot.
// Removing an unknown student is a no-op, not an error.
func (r *Registry) RemoveSession(studentID string) (types.SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[studentID]
	if !ok {
		return types.SessionSnapshot{}, false
	}
	delete(r.sessions, studentID)

	return snapshotOf(s), true
}

// RemoveSessionIfConn deletes the session only when it is still bound to the
// given connection.
// RACE CONDITION FIX: A disconnect from a replaced connection must not remove
// the session the student re-established in the meantime.
func (r *Registry) RemoveSessionIfConn(studentID, connID string) (types.SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[studentID]
	if !ok {
		return types.SessionSnapshot{}, false
	}
	if s.conn != nil && s.conn.ID() != connID {
		return types.SessionSnapshot{}, false
	}
	delete(r.sessions, studentID)

	return snapshotOf(s), true
}

// ListSessions returns a consistent snapshot of all sessions, ordered by
// student ID for stable admin hydration payloads.
func (r *Registry) ListSessions() []types.SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]types.SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshots = append(snapshots, snapshotOf(s))
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StudentID < snapshots[j].StudentID
	})

	return snapshots
}

// StudentIDs returns the current session keys for sampling
func (r *Registry) StudentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount returns the number of active sessions
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the snapshot for one student
func (r *Registry) Snapshot(studentID string) (types.SessionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[studentID]
	if !ok {
		return types.SessionSnapshot{}, false
	}
	return snapshotOf(s), true
}

// IsObserved reports the current sampling decision for a student
func (r *Registry) IsObserved(studentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[studentID]
	return ok && s.isObserved
}

// ApplyObservedSet replaces the observed flags wholesale: students in the set
// become observed, everyone else is cleared. Returns one status target per
// session so the caller can notify every affected student.
// ARCHITECTURAL DISCOVERY: Full replacement under one lock acquisition, two
// resamples can never interleave into a half-applied observed set
func (r *Registry) ApplyObservedSet(observed []string) []StatusTarget {
	observedSet := make(map[string]struct{}, len(observed))
	for _, id := range observed {
		observedSet[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]StatusTarget, 0, len(r.sessions))
	for id, s := range r.sessions {
		_, isObserved := observedSet[id]
		s.isObserved = isObserved
		targets = append(targets, StatusTarget{
			StudentID:  id,
			Conn:       s.conn,
			IsObserved: isObserved,
		})
	}

	return targets
}

// TouchHeartbeat refreshes a session's liveness timestamp
func (r *Registry) TouchHeartbeat(studentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[studentID]; ok {
		s.lastHeartbeat = time.Now()
	}
}

// SessionStates returns the reaper's view of every session
func (r *Registry) SessionStates() []SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]SessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		alive := s.conn != nil && s.conn.IsAlive()
		states = append(states, SessionState{
			StudentID:     s.studentID,
			LastHeartbeat: s.lastHeartbeat,
			Alive:         alive,
		})
	}
	return states
}

// SessionConn returns the connection bound to a student's session
func (r *Registry) SessionConn(studentID string) (interfaces.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[studentID]
	if !ok || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// RegisterObserver adds an admin connection to the broadcast room
func (r *Registry) RegisterObserver(conn interfaces.Conn) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[conn.ID()] = conn

	return nil
}

// RemoveObserver drops an admin connection from the broadcast room (idempotent)
func (r *Registry) RemoveObserver(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, connID)
}

// ObserverCount returns the number of connected admin observers
func (r *Registry) ObserverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

// BroadcastToObservers fans an event out to every admin connection.
// FUNCTIONAL DISCOVERY: Write failures are logged and skipped, one slow or
// dead admin never blocks delivery to the rest of the room
func (r *Registry) BroadcastToObservers(event string, data interface{}) {
	r.mu.RLock()
	observers := make([]interfaces.Conn, 0, len(r.observers))
	for _, conn := range r.observers {
		observers = append(observers, conn)
	}
	r.mu.RUnlock()

	for _, conn := range observers {
		if err := conn.WriteEvent(event, data); err != nil {
			log.Printf("Failed to deliver %s to observer %s: %v", event, conn.ID(), err)
		}
	}
}

// Stats returns registry statistics for the admin API
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	observed := 0
	for _, s := range r.sessions {
		if s.isObserved {
			observed++
		}
	}

	return map[string]int{
		"active_sessions":  len(r.sessions),
		"observed_count":   observed,
		"active_observers": len(r.observers),
	}
}

func snapshotOf(s *session) types.SessionSnapshot {
	connID := ""
	if s.conn != nil {
		connID = s.conn.ID()
	}
	return types.SessionSnapshot{
		StudentID:    s.studentID,
		ConnectionID: connID,
		StudentName:  s.studentName,
		TestID:       s.testID,
		TestTitle:    s.testTitle,
		StartTime:    s.startTime,
		IsMonitored:  s.isObserved,
	}
}
