package types

import (
	"time"
)

// Connection roles recognized by the gateway
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Session removal reasons carried on student:left broadcasts
// FUNCTIONAL DISCOVERY: Reason strings are part of the admin-facing contract,
// dashboards group departures by these exact values
const (
	ReasonExplicitLeave     = "explicit_leave"
	ReasonDisconnect        = "disconnect"
	ReasonConnectionTimeout = "connection_timeout"
)

// Violation severity levels
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AI violation types produced by client-side detection
const (
	ViolationNoFace           = "no_face"
	ViolationMultipleFaces    = "multiple_faces"
	ViolationPhoneDetected    = "phone_detected"
	ViolationLookingDown      = "looking_down"
	ViolationVideoBlur        = "video_blur"
	ViolationLoudNoise        = "loud_noise"
	ViolationVoiceDetected    = "voice_detected"
	ViolationMicrophoneSilent = "microphone_silent"
)

// SessionSnapshot is the read-only view of an active proctoring session
// ARCHITECTURAL DISCOVERY: Snapshots are value copies, never aliases into
// registry state, so hydration payloads cannot observe torn mutations
type SessionSnapshot struct {
	StudentID    string    `json:"studentId"`
	ConnectionID string    `json:"connectionId"`
	StudentName  string    `json:"studentName"`
	TestID       string    `json:"testId"`
	TestTitle    string    `json:"testTitle"`
	StartTime    time.Time `json:"startTime"`
	IsMonitored  bool      `json:"isMonitored"`
}

// ViolationRecord is an immutable AI-detected violation fact
// FUNCTIONAL DISCOVERY: Records are persisted exactly once and never mutated,
// the broadcast payload is derived from the persisted row
type ViolationRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	TestID    string    `json:"testId"`
	Type      string    `json:"violationType"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ViolationSummaryRow aggregates violations by type and severity for a test
type ViolationSummaryRow struct {
	Type             string `json:"violationType"`
	Severity         string `json:"severity"`
	Count            int    `json:"count"`
	AffectedStudents int    `json:"affectedStudents"`
}

// FlaggedStudent is a student whose high-severity violation count crossed the
// review threshold
type FlaggedStudent struct {
	StudentID           string    `json:"studentId"`
	TotalViolations     int       `json:"totalViolations"`
	HighSeverityCount   int       `json:"highSeverityCount"`
	MediumSeverityCount int       `json:"mediumSeverityCount"`
	LastViolation       time.Time `json:"lastViolation"`
}
