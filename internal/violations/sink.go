package violations

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"proctorhub/internal/metrics"
	"proctorhub/pkg/interfaces"
	"proctorhub/pkg/types"
)

const (
	insertMaxRetries     = 3
	insertInitialBackoff = 100 * time.Millisecond
	insertMaxBackoff     = 2 * time.Second
)

// Sink persists violation records and relays them to observers
// FUNCTIONAL DISCOVERY: Broadcast happens only after the row is durable,
// admins must never see a violation that is not on record
type Sink struct {
	store       interfaces.ViolationStore
	broadcaster interfaces.Broadcaster
}

// NewSink creates a sink writing to store and alerting through broadcaster
func NewSink(store interfaces.ViolationStore, broadcaster interfaces.Broadcaster) *Sink {
	return &Sink{
		store:       store,
		broadcaster: broadcaster,
	}
}

// PersistAndNotify durably writes the record, then broadcasts the alert.
// The insert is retried with bounded exponential backoff; after the retry
// budget is spent the alert is suppressed and the failure reported to the
// caller. A persistence failure never disconnects the student.
func (s *Sink) PersistAndNotify(ctx context.Context, rec *types.ViolationRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid violation record: %w", err)
	}

	operation := func() error {
		return s.store.Insert(ctx, rec)
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(insertInitialBackoff),
				backoff.WithMaxInterval(insertMaxBackoff),
			),
			insertMaxRetries,
		),
		ctx,
	)

	err := backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		log.Printf("Violation insert failed, retrying in %v: student=%s test=%s err=%v",
			d, rec.StudentID, rec.TestID, err)
	})
	if err != nil {
		metrics.ViolationsFailed.Inc()
		log.Printf("Violation persistence failed after retries, alert suppressed: student=%s test=%s type=%s err=%v",
			rec.StudentID, rec.TestID, rec.Type, err)
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	metrics.ViolationsPersisted.Inc()

	s.broadcaster.BroadcastToObservers(types.EventViolationAlert, rec)

	return nil
}
