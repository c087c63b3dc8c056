package pos

import (
	"sync"
	"time"
)

// throttle paces outgoing gateway calls to a fixed requests-per-second
// ceiling. Each caller reserves the next free slot under the lock and
// sleeps outside it, so queued callers go out evenly spaced rather than
// in a burst.
type throttle struct {
	mu       sync.Mutex
	nextSlot time.Time
	gap      time.Duration
}

func newThrottle(requestsPerSecond int) *throttle {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &throttle{gap: time.Second / time.Duration(requestsPerSecond)}
}

func (t *throttle) wait() {
	t.mu.Lock()
	slot := time.Now()
	if slot.Before(t.nextSlot) {
		slot = t.nextSlot
	}
	t.nextSlot = slot.Add(t.gap)
	t.mu.Unlock()

	time.Sleep(time.Until(slot))
}
