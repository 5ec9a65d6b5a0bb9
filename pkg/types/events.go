package types

import (
	"encoding/json"
	"time"
)

// Wire event names, student/admin -> core
// ARCHITECTURAL DISCOVERY: Event names match the browser clients verbatim,
// renaming any of these is a breaking protocol change
const (
	EventStudentJoin  = "student:join-proctoring"
	EventStudentLeave = "student:leave-proctoring"
	EventFrame        = "proctoring:frame"
	EventAIViolation  = "proctoring:ai-violation"
	EventAdminJoin    = "admin:join-monitoring"
	EventAdminRefresh = "admin:refresh-monitoring"
	EventClientError  = "client-error"
)

// Wire event names, core -> student/admin
const (
	EventActiveSessions    = "active-sessions"
	EventMonitoringConfig  = "monitoring-config"
	EventStudentJoined     = "student:joined"
	EventStudentLeft       = "student:left"
	EventPoolUpdated       = "monitoring-pool-updated"
	EventViolationAlert    = "ai-violation-alert"
	EventMonitoringStatus  = "monitoring-status"
	EventHealthCheck       = "health-check"
	EventConnectionTimeout = "connection-timeout"
	EventStudentError      = "student:error"
)

// Envelope frames every WebSocket message in both directions
// TECHNICAL DISCOVERY: Data stays raw until the event name is known,
// so one malformed payload cannot poison dispatch of later events
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload identifies a student entering proctoring
type JoinPayload struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	TestID      string `json:"testId"`
	TestTitle   string `json:"testTitle"`
}

// LeavePayload identifies a student leaving explicitly
type LeavePayload struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
}

// FramePayload carries one webcam frame plus detection context
// FUNCTIONAL DISCOVERY: Frame bytes stay base64 end to end, the coordinator
// relays them opaque and never decodes image data
type FramePayload struct {
	StudentID    string         `json:"studentId"`
	StudentName  string         `json:"studentName"`
	TestID       string         `json:"testId"`
	TestTitle    string         `json:"testTitle"`
	Frame        string         `json:"frame"`
	Timestamp    int64          `json:"timestamp"`
	AIViolations map[string]int `json:"aiViolations,omitempty"`
}

// ViolationDetail is the client-reported violation body
type ViolationDetail struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ViolationPayload is the student -> core violation event
type ViolationPayload struct {
	StudentID string          `json:"studentId"`
	TestID    string          `json:"testId"`
	Violation ViolationDetail `json:"violation"`
	Timestamp int64           `json:"timestamp"`
}

// MonitoringStatus tells a student whether frames should be streamed
type MonitoringStatus struct {
	IsMonitored bool `json:"isMonitored"`
	FrameRate   int  `json:"frameRate"`
}

// MonitoringConfig is sent to admins on join-monitoring
type MonitoringConfig struct {
	SampleRate       float64 `json:"sampleRate"`
	FrameRate        int     `json:"frameRate"`
	RotationInterval int     `json:"rotationInterval"` // minutes
	TotalStudents    int     `json:"totalStudents"`
	MonitoredCount   int     `json:"monitoredCount"`
}

// PoolUpdate is broadcast to admins after every resample
type PoolUpdate struct {
	TotalStudents     int       `json:"totalStudents"`
	MonitoredCount    int       `json:"monitoredCount"`
	MonitoredStudents []string  `json:"monitoredStudents"`
	SampleRate        float64   `json:"sampleRate"`
	NextRotation      time.Time `json:"nextRotation"`
}

// StudentLeft notifies admins of a departed session
type StudentLeft struct {
	StudentID       string    `json:"studentId"`
	StudentName     string    `json:"studentName"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
	SessionDuration int64     `json:"sessionDuration"` // milliseconds
}

// HealthProbe is the reaper's liveness probe payload
type HealthProbe struct {
	Timestamp time.Time `json:"timestamp"`
}

// StudentError relays a client-reported error to observers
type StudentError struct {
	StudentID string          `json:"studentId"`
	Error     json.RawMessage `json:"error"`
	Timestamp time.Time       `json:"timestamp"`
}
