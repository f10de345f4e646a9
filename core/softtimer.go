package core

// Timer represents a scheduled event in a SoftTimer list
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// SoftTimer is a TimerDriver backed by a sorted list of software timers.
// Targets without a spare hardware alarm call Dispatch from their main loop;
// every timer whose wake time has passed runs there.
type SoftTimer struct {
	clock func() uint32
	list  *Timer

	// oneShot is the timer handed out through Arm
	oneShot Timer
	armed   bool
	fn      func()
}

// NewSoftTimer creates a soft timer reading clock. A nil clock uses GetTime.
func NewSoftTimer(clock func() uint32) *SoftTimer {
	if clock == nil {
		clock = GetTime
	}
	st := &SoftTimer{clock: clock}
	st.oneShot.Handler = st.fireOneShot
	return st
}

// Now implements TimerDriver
func (st *SoftTimer) Now() uint32 {
	return st.clock()
}

// Arm implements TimerDriver
func (st *SoftTimer) Arm(delay int32, fn func()) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if st.armed {
		st.removeTimer(&st.oneShot)
	}
	if delay < 0 {
		delay = 0
	}
	st.fn = fn
	st.armed = true
	st.oneShot.WakeTime = st.clock() + uint32(delay)
	st.insertTimer(&st.oneShot)
}

// Disarm implements TimerDriver
func (st *SoftTimer) Disarm() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if st.armed {
		st.removeTimer(&st.oneShot)
		st.armed = false
	}
}

// Schedule adds an independent timer to the list
func (st *SoftTimer) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	st.insertTimer(t)
}

// Pending returns the number of timers waiting in the list
func (st *SoftTimer) Pending() int {
	n := 0
	for t := st.list; t != nil; t = t.Next {
		n++
	}
	return n
}

// Dispatch runs every timer due at now
func (st *SoftTimer) Dispatch(now uint32) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for st.list != nil && !clockBefore(now, st.list.WakeTime) {
		timer := st.list
		st.list = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SF_RESCHEDULE {
			st.insertTimer(timer)
		}
	}
}

// Process reads the clock and dispatches due timers
func (st *SoftTimer) Process() {
	st.Dispatch(st.clock())
}

func (st *SoftTimer) fireOneShot(t *Timer) uint8 {
	st.armed = false
	if fn := st.fn; fn != nil {
		fn()
	}
	return SF_DONE
}

// insertTimer inserts a timer in wake order. Equal wake times keep FIFO order.
func (st *SoftTimer) insertTimer(t *Timer) {
	if st.list == nil || clockBefore(t.WakeTime, st.list.WakeTime) {
		t.Next = st.list
		st.list = t
		return
	}

	current := st.list
	for current.Next != nil && !clockBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

func (st *SoftTimer) removeTimer(t *Timer) {
	if st.list == t {
		st.list = t.Next
		t.Next = nil
		return
	}
	for current := st.list; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}
