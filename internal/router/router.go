package router

import (
	"context"
	"time"

	"github.com/google/uuid"

	"proctorhub/internal/metrics"
	"proctorhub/internal/registry"
	"proctorhub/pkg/types"
)

// ViolationSink is the persistence boundary for AI violations
type ViolationSink interface {
	PersistAndNotify(ctx context.Context, rec *types.ViolationRecord) error
}

// Router fans student events out to admin observers, gated by the sampler's
// observed-set decision
// ARCHITECTURAL DISCOVERY: Pure routing decisions, no session lifecycle or
// sampling logic lives here
type Router struct {
	registry *registry.Registry
	limiter  *FrameLimiter
	sink     ViolationSink
}

// NewRouter creates an event router
func NewRouter(reg *registry.Registry, limiter *FrameLimiter, sink ViolationSink) *Router {
	return &Router{
		registry: reg,
		limiter:  limiter,
		sink:     sink,
	}
}

// RouteFrame relays one webcam frame to the admin room if and only if the
// sending student is currently observed. Unobserved, over-budget and unknown
// senders are dropped silently: frames are real-time-only telemetry, a frame
// that cannot be delivered now has no value later.
func (r *Router) RouteFrame(p *types.FramePayload) {
	if _, ok := r.registry.Snapshot(p.StudentID); !ok {
		metrics.FramesDropped.WithLabelValues(metrics.DropReasonNoSession).Inc()
		return
	}

	if !r.registry.IsObserved(p.StudentID) {
		metrics.FramesDropped.WithLabelValues(metrics.DropReasonUnobserved).Inc()
		return
	}

	if !r.limiter.Allow(p.StudentID) {
		metrics.FramesDropped.WithLabelValues(metrics.DropReasonRateLimit).Inc()
		return
	}

	r.registry.BroadcastToObservers(types.EventFrame, p)
	metrics.FramesRelayed.Inc()
}

// RouteViolation hands the violation to the sink unconditionally, observed or
// not: its value is independent of whether a human was watching live. The
// sink broadcasts to admins only after durable persistence.
func (r *Router) RouteViolation(ctx context.Context, p *types.ViolationPayload) error {
	ts := time.UnixMilli(p.Timestamp)
	if p.Timestamp == 0 {
		ts = time.Now()
	}

	rec := &types.ViolationRecord{
		ID:        uuid.New().String(),
		StudentID: p.StudentID,
		TestID:    p.TestID,
		Type:      p.Violation.Type,
		Severity:  p.Violation.Severity,
		Message:   p.Violation.Message,
		Timestamp: ts,
	}

	return r.sink.PersistAndNotify(ctx, rec)
}

// ForgetStudent clears per-student routing state after session removal
func (r *Router) ForgetStudent(studentID string) {
	r.limiter.Forget(studentID)
}
