package sync

import (
	"errors"
	"sync"
)

// ErrSyncInProgress is returned when a run is requested for a source that
// already has one in flight. Two runs for the same source would race on the
// upsert key; runs for different sources are independent.
var ErrSyncInProgress = errors.New("sync already in progress for this source")

// runLocks serializes sync runs per source id
type runLocks struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newRunLocks() *runLocks {
	return &runLocks{inFlight: make(map[string]bool)}
}

// acquire marks a source as running; false when a run is already in flight
func (l *runLocks) acquire(sourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[sourceID] {
		return false
	}
	l.inFlight[sourceID] = true
	return true
}

func (l *runLocks) release(sourceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, sourceID)
}
