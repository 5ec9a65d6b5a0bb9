package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proctorhub_sessions_active",
		Help: "The current number of active student proctoring sessions.",
	})
	ActiveObservers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proctorhub_observers_active",
		Help: "The current number of connected admin observers.",
	})
	ObservedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proctorhub_sessions_observed",
		Help: "The current number of sessions selected for live observation.",
	})
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctorhub_sessions_evicted_total",
		Help: "The total number of sessions evicted by the health reaper.",
	})
	Resamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctorhub_resamples_total",
		Help: "The total number of observed-set recomputations.",
	})

	// Frame routing metrics
	FramesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctorhub_frames_relayed_total",
		Help: "The total number of webcam frames relayed to observers.",
	})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proctorhub_frames_dropped_total",
		Help: "The total number of webcam frames dropped, by reason.",
	}, []string{"reason"})

	// Violation metrics
	ViolationsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctorhub_violations_persisted_total",
		Help: "The total number of AI violations durably stored.",
	})
	ViolationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctorhub_violations_failed_total",
		Help: "The total number of AI violations whose persistence failed after retries.",
	})
)

// Frame drop reasons
const (
	DropReasonUnobserved = "unobserved"
	DropReasonRateLimit  = "rate_limit"
	DropReasonNoSession  = "no_session"
)

// Handler returns the Prometheus scrape handler for mounting on the main mux.
func Handler() http.Handler {
	return promhttp.Handler()
}
