package router

import (
	"sync"
	"time"
)

// FrameLimiter enforces the per-student frame-rate budget
// FUNCTIONAL DISCOVERY: One-second windows matching the configured fps keep a
// misbehaving client from flooding the admin room with extra frames
type FrameLimiter struct {
	mu      sync.Mutex
	budget  int // frames allowed per window
	window  time.Duration
	clients map[string]*clientWindow
}

// clientWindow tracks frame counting for a single student
type clientWindow struct {
	frameCount  int
	windowStart time.Time
}

// NewFrameLimiter creates a limiter allowing framesPerSecond frames per
// student per second.
func NewFrameLimiter(framesPerSecond int) *FrameLimiter {
	return &FrameLimiter{
		budget:  framesPerSecond,
		window:  time.Second,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the student may send another frame in this window
func (fl *FrameLimiter) Allow(studentID string) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()

	w, exists := fl.clients[studentID]
	if !exists {
		fl.clients[studentID] = &clientWindow{frameCount: 1, windowStart: now}
		return true
	}

	if now.Sub(w.windowStart) >= fl.window {
		w.frameCount = 1
		w.windowStart = now
		return true
	}

	if w.frameCount >= fl.budget {
		return false
	}

	w.frameCount++
	return true
}

// Forget drops tracking state for a departed student
// TECHNICAL DISCOVERY: Cleanup on session removal prevents the map from
// growing without bound across exam days
func (fl *FrameLimiter) Forget(studentID string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	delete(fl.clients, studentID)
}
