package ratelimit

import (
	"sync"
	"time"
)

// SourceLimiter enforces per-source outbound request limits. Each source
// gets its own sliding one-minute window sized by its configured
// rate_limit_per_minute; a limit of zero means unlimited.
type SourceLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewSourceLimiter creates an empty per-source limiter
func NewSourceLimiter() *SourceLimiter {
	return &SourceLimiter{
		windows: make(map[string][]time.Time),
	}
}

// Allow checks whether another request to the given source is permitted
// under its per-minute limit, recording the request if so.
func (sl *SourceLimiter) Allow(sourceKey string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := time.Now()
	window := filterTimes(sl.windows[sourceKey], now.Add(-1*time.Minute))

	if len(window) >= perMinute {
		sl.windows[sourceKey] = window
		return false
	}

	sl.windows[sourceKey] = append(window, now)
	return true
}

// Wait blocks until a request to the source is permitted. Poll-based rather
// than timer-based: sync runs are infrequent and tolerate second-level
// granularity.
func (sl *SourceLimiter) Wait(sourceKey string, perMinute int) {
	for !sl.Allow(sourceKey, perMinute) {
		time.Sleep(time.Second)
	}
}

// Stats returns the request count in the current window for a source
func (sl *SourceLimiter) Stats(sourceKey string) int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	window := filterTimes(sl.windows[sourceKey], time.Now().Add(-1*time.Minute))
	sl.windows[sourceKey] = window
	return len(window)
}

// Reset clears all tracked requests (useful for testing)
func (sl *SourceLimiter) Reset() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.windows = make(map[string][]time.Time)
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	result := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}
