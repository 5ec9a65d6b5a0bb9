package reaper

import (
	"time"

	"proctorhub/internal/config"
	"proctorhub/internal/registry"
)

// Reaper detects stale sessions through a three-state machine:
//
//	ALIVE -> SUSPECT -> EVICTED
//
// A session whose transport is already dead is evicted immediately. A
// session that merely stopped heartbeating becomes SUSPECT, receives a
// liveness probe and is evicted only if still stale after the grace period.
// A session is never evicted on its first missed check.
//
// ARCHITECTURAL DISCOVERY: Pure state machine with no timers or I/O of its
// own; the coordinator loop owns sweep cadence and performs probes and
// evictions, so the suspect map needs no locking.
type Reaper struct {
	staleThreshold time.Duration
	gracePeriod    time.Duration

	suspects map[string]time.Time // studentID -> probe time
}

// Result is the action list produced by one sweep
type Result struct {
	Evict []string // sessions to remove with reason connection_timeout
	Probe []string // sessions to send a liveness probe
}

// New creates a reaper with the configured thresholds
func New(cfg config.ReaperConfig) *Reaper {
	return &Reaper{
		staleThreshold: cfg.StaleThreshold,
		gracePeriod:    cfg.GracePeriod,
		suspects:       make(map[string]time.Time),
	}
}

// Sweep classifies every session and returns the evictions and probes due.
// Callers re-invoke Sweep after the grace period to resolve SUSPECT sessions.
func (r *Reaper) Sweep(now time.Time, states []registry.SessionState) Result {
	var res Result

	seen := make(map[string]struct{}, len(states))

	for _, s := range states {
		seen[s.StudentID] = struct{}{}

		// Dead transport short-circuits the probe dance
		if !s.Alive {
			res.Evict = append(res.Evict, s.StudentID)
			delete(r.suspects, s.StudentID)
			continue
		}

		stale := now.Sub(s.LastHeartbeat) > r.staleThreshold

		if !stale {
			// Fresh heartbeat clears any suspicion
			delete(r.suspects, s.StudentID)
			continue
		}

		probedAt, suspect := r.suspects[s.StudentID]
		if !suspect {
			// ALIVE -> SUSPECT: probe and wait out the grace period
			r.suspects[s.StudentID] = now
			res.Probe = append(res.Probe, s.StudentID)
			continue
		}

		if now.Sub(probedAt) >= r.gracePeriod {
			// SUSPECT -> EVICTED: probe went unanswered
			res.Evict = append(res.Evict, s.StudentID)
			delete(r.suspects, s.StudentID)
		}
	}

	// Sessions removed through other paths must not linger as suspects
	for id := range r.suspects {
		if _, ok := seen[id]; !ok {
			delete(r.suspects, id)
		}
	}

	return res
}

// GracePeriod exposes the configured grace for scheduling the recheck sweep
func (r *Reaper) GracePeriod() time.Duration {
	return r.gracePeriod
}

// SuspectCount returns the number of sessions currently under suspicion
func (r *Reaper) SuspectCount() int {
	return len(r.suspects)
}
