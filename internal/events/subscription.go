package events

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is a stream of events for one job. It must be closed once the
// caller stops reading.
type Subscription struct {
	// C receives the job's events.
	C <-chan *JobEvent

	jobID  uuid.UUID
	once   sync.Once
	cancel func()
}

// JobID returns the job the subscription is filtered to.
func (s *Subscription) JobID() uuid.UUID {
	return s.jobID
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}
