package violations

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"proctorhub/internal/config"
	"proctorhub/pkg/types"
)

// schema is applied at startup; the coordinator only ever appends rows so the
// single table plus two lookup indexes is the whole persistence surface
const schema = `
CREATE TABLE IF NOT EXISTS proctoring_violations (
    id             TEXT PRIMARY KEY,
    student_id     TEXT NOT NULL,
    test_id        TEXT NOT NULL,
    violation_type TEXT NOT NULL,
    severity       TEXT NOT NULL,
    message        TEXT,
    timestamp      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violations_test ON proctoring_violations(test_id);
CREATE INDEX IF NOT EXISTS idx_violations_student ON proctoring_violations(student_id);
`

// Store implements interfaces.ViolationStore on SQLite
// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
// contention; reads run concurrently against the WAL snapshot
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed status
}

// writeOperation represents one queued database write
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the violation database and starts the writer goroutine
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	store := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			op.result <- op.operation(s.db)

		case <-s.shutdown:
			log.Println("Violation store write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdown:
			// The write loop may have exited before draining this
			// operation; fail fast instead of waiting on a result
			// that will never arrive
			return ErrStoreClosed
		}
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// Insert durably writes one violation record
func (s *Store) Insert(ctx context.Context, rec *types.ViolationRecord) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO proctoring_violations (id, student_id, test_id, violation_type, severity, message, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			rec.ID,
			rec.StudentID,
			rec.TestID,
			rec.Type,
			rec.Severity,
			rec.Message,
			rec.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert violation: %w", err)
		}
		return nil
	})
}

// ViolationsByTest returns all violations for a test, newest first
func (s *Store) ViolationsByTest(ctx context.Context, testID string) ([]*types.ViolationRecord, error) {
	query := `
		SELECT id, student_id, test_id, violation_type, severity, message, timestamp
		FROM proctoring_violations
		WHERE test_id = ?
		ORDER BY timestamp DESC
	`
	return s.queryRecords(ctx, query, testID)
}

// ViolationsByStudent returns all violations for a student, newest first
func (s *Store) ViolationsByStudent(ctx context.Context, studentID string) ([]*types.ViolationRecord, error) {
	query := `
		SELECT id, student_id, test_id, violation_type, severity, message, timestamp
		FROM proctoring_violations
		WHERE student_id = ?
		ORDER BY timestamp DESC
	`
	return s.queryRecords(ctx, query, studentID)
}

func (s *Store) queryRecords(ctx context.Context, query string, arg interface{}) ([]*types.ViolationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.ViolationRecord
	for rows.Next() {
		var rec types.ViolationRecord
		var message sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.StudentID,
			&rec.TestID,
			&rec.Type,
			&rec.Severity,
			&message,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation row: %w", err)
		}
		if message.Valid {
			rec.Message = message.String
		}

		records = append(records, &rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violation rows: %w", err)
	}

	return records, nil
}

// SummaryByTest aggregates violation counts by type and severity.
// FUNCTIONAL DISCOVERY: microphone_silent is excluded everywhere it would
// inflate counts, it fires continuously for students with muted microphones
func (s *Store) SummaryByTest(ctx context.Context, testID string) ([]*types.ViolationSummaryRow, error) {
	query := `
		SELECT violation_type, severity, COUNT(*) AS count, COUNT(DISTINCT student_id) AS affected_students
		FROM proctoring_violations
		WHERE test_id = ? AND violation_type != 'microphone_silent'
		GROUP BY violation_type, severity
		ORDER BY count DESC
	`

	rows, err := s.db.QueryContext(ctx, query, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violation summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summary []*types.ViolationSummaryRow
	for rows.Next() {
		var row types.ViolationSummaryRow
		if err := rows.Scan(&row.Type, &row.Severity, &row.Count, &row.AffectedStudents); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary = append(summary, &row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	return summary, nil
}

// FlaggedStudents returns students with 3 or more high-severity violations
// on a test, ranked by high-severity count
func (s *Store) FlaggedStudents(ctx context.Context, testID string) ([]*types.FlaggedStudent, error) {
	query := `
		SELECT
			student_id,
			COUNT(CASE WHEN violation_type != 'microphone_silent' THEN 1 END) AS total_violations,
			COUNT(CASE WHEN severity = 'high' AND violation_type != 'microphone_silent' THEN 1 END) AS high_severity_count,
			COUNT(CASE WHEN severity = 'medium' AND violation_type != 'microphone_silent' THEN 1 END) AS medium_severity_count,
			MAX(timestamp) AS last_violation
		FROM proctoring_violations
		WHERE test_id = ?
		GROUP BY student_id
		HAVING COUNT(CASE WHEN severity = 'high' AND violation_type != 'microphone_silent' THEN 1 END) >= 3
		ORDER BY high_severity_count DESC, total_violations DESC
	`

	rows, err := s.db.QueryContext(ctx, query, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flagged students: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var flagged []*types.FlaggedStudent
	for rows.Next() {
		var f types.FlaggedStudent
		var lastViolation string

		// MAX(timestamp) is an expression column with no decltype, so the
		// driver hands it back as a raw string instead of a time.Time
		if err := rows.Scan(&f.StudentID, &f.TotalViolations, &f.HighSeverityCount, &f.MediumSeverityCount, &lastViolation); err != nil {
			return nil, fmt.Errorf("failed to scan flagged student row: %w", err)
		}

		ts, err := parseStoredTimestamp(lastViolation)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last violation timestamp: %w", err)
		}
		f.LastViolation = ts

		flagged = append(flagged, &f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flagged student rows: %w", err)
	}

	return flagged, nil
}

// storedTimestampLayouts are the formats the driver writes time.Time values in
var storedTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseStoredTimestamp(value string) (time.Time, error) {
	for _, layout := range storedTimestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp value %q", value)
}

// HealthCheck validates database connectivity
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// QueryRowContext releases its connection on Scan; a bare QueryContext
	// here would leak one pooled connection per probe
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM proctoring_violations").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close shuts down the store
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil // already closed
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance pragmas
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
