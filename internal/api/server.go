package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"proctorhub/pkg/interfaces"
	"proctorhub/pkg/types"
)

// Stats exposes coordinator statistics without coupling to its implementation
type Stats interface {
	Stats() map[string]interface{}
}

// ARCHITECTURAL DISCOVERY: HTTP API layer is a pure interface between admin
// dashboards and the violation store, no business logic beyond JSON plumbing
type Server struct {
	store  interfaces.ViolationStore
	stats  Stats
	router *http.ServeMux
}

// NewServer creates the admin API server
func NewServer(store interfaces.ViolationStore, stats Stats) *Server {
	s := &Server{
		store:  store,
		stats:  stats,
		router: http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/violations/test/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.violationsByTest))))
	s.router.Handle("/api/violations/student/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.violationsByStudent))))
	s.router.Handle("/api/violations/summary/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.violationSummary))))
	s.router.Handle("/api/violations/flagged/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.flaggedStudents))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStats))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) violationsByTest(w http.ResponseWriter, r *http.Request) {
	testID, ok := s.pathID(w, r, "/api/violations/test/")
	if !ok {
		return
	}

	records, err := s.store.ViolationsByTest(r.Context(), testID)
	if err != nil {
		log.Printf("Failed to fetch violations for test %s: %v", testID, err)
		s.sendError(w, "Failed to fetch violations", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"success":    true,
		"violations": emptyIfNilRecords(records),
	})
}

func (s *Server) violationsByStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := s.pathID(w, r, "/api/violations/student/")
	if !ok {
		return
	}

	records, err := s.store.ViolationsByStudent(r.Context(), studentID)
	if err != nil {
		log.Printf("Failed to fetch violations for student %s: %v", studentID, err)
		s.sendError(w, "Failed to fetch student violations", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"success":    true,
		"violations": emptyIfNilRecords(records),
	})
}

func (s *Server) violationSummary(w http.ResponseWriter, r *http.Request) {
	testID, ok := s.pathID(w, r, "/api/violations/summary/")
	if !ok {
		return
	}

	summary, err := s.store.SummaryByTest(r.Context(), testID)
	if err != nil {
		log.Printf("Failed to fetch violation summary for test %s: %v", testID, err)
		s.sendError(w, "Failed to fetch violation summary", http.StatusInternalServerError)
		return
	}

	if summary == nil {
		summary = []*types.ViolationSummaryRow{}
	}
	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"summary": summary,
	})
}

func (s *Server) flaggedStudents(w http.ResponseWriter, r *http.Request) {
	testID, ok := s.pathID(w, r, "/api/violations/flagged/")
	if !ok {
		return
	}

	flagged, err := s.store.FlaggedStudents(r.Context(), testID)
	if err != nil {
		log.Printf("Failed to fetch flagged students for test %s: %v", testID, err)
		s.sendError(w, "Failed to fetch flagged students", http.StatusInternalServerError)
		return
	}

	if flagged == nil {
		flagged = []*types.FlaggedStudent{}
	}
	s.sendJSON(w, map[string]interface{}{
		"success":         true,
		"flaggedStudents": flagged,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"stats":   s.stats.Stats(),
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		s.sendJSON(w, map[string]interface{}{
			"status": "unhealthy",
			"error":  "store unavailable",
		})
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// pathID extracts and validates the trailing path identifier
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodOptions {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}

	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		s.sendError(w, "Identifier required", http.StatusBadRequest)
		return "", false
	}
	if !types.IsValidID(id) {
		s.sendError(w, "Invalid identifier format", http.StatusBadRequest)
		return "", false
	}

	return id, true
}

func (s *Server) sendJSON(w http.ResponseWriter, payload interface{}) {
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	s.sendJSON(w, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func emptyIfNilRecords(records []*types.ViolationRecord) []*types.ViolationRecord {
	if records == nil {
		return []*types.ViolationRecord{}
	}
	return records
}
