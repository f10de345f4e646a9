package linux

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer implements core.TimerDriver on Go timers. Now counts microseconds
// since the timer was created; the scheduler masks it to 31 bits.
type Timer struct {
	clock clockwork.Clock
	start time.Time

	mu       sync.Mutex
	pending  clockwork.Timer
	gen      uint64 // bumped on every Arm/Disarm so a stale callback is dropped
	closed   bool
	inFlight sync.WaitGroup
}

// NewTimer creates a timer on clock. A nil clock uses the real one.
func NewTimer(clock clockwork.Clock) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{
		clock: clock,
		start: clock.Now(),
	}
}

// Now implements core.TimerDriver
func (t *Timer) Now() uint32 {
	return uint32(t.clock.Since(t.start) / time.Microsecond)
}

// Arm implements core.TimerDriver
func (t *Timer) Arm(delay int32, fn func()) {
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.stopLocked()
	gen := t.gen
	t.pending = t.clock.AfterFunc(time.Duration(delay)*time.Microsecond, func() {
		t.mu.Lock()
		current := gen == t.gen && !t.closed
		if current {
			t.pending = nil
			t.inFlight.Add(1)
		}
		t.mu.Unlock()
		if current {
			defer t.inFlight.Done()
			fn()
		}
	})
}

// Disarm implements core.TimerDriver
func (t *Timer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Close disarms the timer for good and waits for a callback that is already
// running to return. Arm is a no-op afterwards, so a callback that rearms
// itself cannot outlive Close.
func (t *Timer) Close() {
	t.mu.Lock()
	t.closed = true
	t.stopLocked()
	t.mu.Unlock()

	t.inFlight.Wait()
}

func (t *Timer) stopLocked() {
	t.gen++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
