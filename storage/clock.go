package storage

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// monotonic wraps a clock so successive readings never go backwards at
// millisecond resolution. This keeps updatedAt >= createdAt even if the
// wall clock is stepped back between a create and a later update.
type monotonic struct {
	now  Clock
	last atomic.Int64
}

func newMonotonic(now Clock) *monotonic {
	if now == nil {
		now = time.Now
	}
	return &monotonic{now: now}
}

func (m *monotonic) Now() time.Time {
	for {
		now := m.now().UTC().UnixMilli()
		last := m.last.Load()
		if now < last {
			now = last
		}
		if m.last.CompareAndSwap(last, now) {
			return time.UnixMilli(now).UTC()
		}
	}
}
