package violations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorhub/pkg/types"
)

// flakyStore fails the first failures inserts, then succeeds
type flakyStore struct {
	mu       sync.Mutex
	failures int
	attempts int
	inserted []*types.ViolationRecord
}

func (f *flakyStore) Insert(ctx context.Context, rec *types.ViolationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("database is locked")
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *flakyStore) ViolationsByTest(ctx context.Context, testID string) ([]*types.ViolationRecord, error) {
	return nil, nil
}

func (f *flakyStore) ViolationsByStudent(ctx context.Context, studentID string) ([]*types.ViolationRecord, error) {
	return nil, nil
}

func (f *flakyStore) SummaryByTest(ctx context.Context, testID string) ([]*types.ViolationSummaryRow, error) {
	return nil, nil
}

func (f *flakyStore) FlaggedStudents(ctx context.Context, testID string) ([]*types.FlaggedStudent, error) {
	return nil, nil
}

func (f *flakyStore) HealthCheck(ctx context.Context) error { return nil }
func (f *flakyStore) Close() error                          { return nil }

func (f *flakyStore) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

// recordingBroadcaster captures observer broadcasts
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) BroadcastToObservers(event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func validRecord() *types.ViolationRecord {
	return &types.ViolationRecord{
		ID:        "v-1",
		StudentID: "s1",
		TestID:    "t1",
		Type:      types.ViolationNoFace,
		Severity:  types.SeverityHigh,
		Message:   "no face detected",
		Timestamp: time.Now(),
	}
}

func TestSink_PersistThenBroadcast(t *testing.T) {
	store := &flakyStore{}
	bcast := &recordingBroadcaster{}
	sink := NewSink(store, bcast)

	err := sink.PersistAndNotify(context.Background(), validRecord())
	require.NoError(t, err)

	assert.Equal(t, 1, store.insertCount())
	require.Equal(t, 1, bcast.count())
	assert.Equal(t, types.EventViolationAlert, bcast.events[0])
}

func TestSink_RetriesTransientFailure(t *testing.T) {
	store := &flakyStore{failures: 2}
	bcast := &recordingBroadcaster{}
	sink := NewSink(store, bcast)

	err := sink.PersistAndNotify(context.Background(), validRecord())
	require.NoError(t, err)

	assert.Equal(t, 3, store.attempts, "two failures then one success")
	assert.Equal(t, 1, store.insertCount())
	assert.Equal(t, 1, bcast.count())
}

func TestSink_NoBroadcastWhenPersistenceFails(t *testing.T) {
	store := &flakyStore{failures: 100} // exhausts the retry budget
	bcast := &recordingBroadcaster{}
	sink := NewSink(store, bcast)

	err := sink.PersistAndNotify(context.Background(), validRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistFailed)

	assert.Equal(t, 0, bcast.count(), "alert must be suppressed when the row is not durable")
	assert.Equal(t, insertMaxRetries+1, store.attempts)
}

func TestSink_InvalidRecordNeverTouchesStore(t *testing.T) {
	store := &flakyStore{}
	bcast := &recordingBroadcaster{}
	sink := NewSink(store, bcast)

	rec := validRecord()
	rec.Type = "daydreaming"

	err := sink.PersistAndNotify(context.Background(), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidViolationType)

	assert.Equal(t, 0, store.attempts)
	assert.Equal(t, 0, bcast.count())
}

func TestSink_ContextCancellationStopsRetries(t *testing.T) {
	store := &flakyStore{failures: 100}
	bcast := &recordingBroadcaster{}
	sink := NewSink(store, bcast)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.PersistAndNotify(ctx, validRecord())
	require.Error(t, err)
	assert.Equal(t, 0, bcast.count())
}
