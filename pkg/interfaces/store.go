package interfaces

import (
	"context"
	"errors"

	"proctorhub/pkg/types"
)

// Shared store error types
var (
	ErrStoreClosed = errors.New("violation store is closed")
)

// ViolationStore persists and queries AI violation records
// ARCHITECTURAL DISCOVERY: The coordinator only ever appends rows,
// query methods exist for the admin REST surface
type ViolationStore interface {
	// Insert durably writes one record. Must return only after the row
	// is committed, callers gate the admin broadcast on success.
	Insert(ctx context.Context, rec *types.ViolationRecord) error

	// ViolationsByTest returns all violations for a test, newest first
	ViolationsByTest(ctx context.Context, testID string) ([]*types.ViolationRecord, error)

	// ViolationsByStudent returns all violations for a student, newest first
	ViolationsByStudent(ctx context.Context, studentID string) ([]*types.ViolationRecord, error)

	// SummaryByTest aggregates counts by type and severity, excluding
	// microphone_silent which is informational noise
	SummaryByTest(ctx context.Context, testID string) ([]*types.ViolationSummaryRow, error)

	// FlaggedStudents returns students with 3+ high-severity violations
	FlaggedStudents(ctx context.Context, testID string) ([]*types.FlaggedStudent, error)

	// HealthCheck validates store connectivity
	HealthCheck(ctx context.Context) error

	// Close shuts down the store
	Close() error
}

// Broadcaster fans an event out to every connected admin observer
// FUNCTIONAL DISCOVERY: Delivery is best-effort per observer, a slow
// admin never blocks delivery to the others
type Broadcaster interface {
	BroadcastToObservers(event string, data interface{})
}
