package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a scheduler event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Pin       uint8  // Channel pin, when the event concerns one
	Clock     uint32 // Clock reading at the event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtArm          = 1 // tick timer armed; v1=warmup us, v2=period us
	EvtStart        = 2 // channel registered; v1=setpoint
	EvtStop         = 3 // channel unregistered; v1=setpoint
	EvtWrap         = 4 // clock wrap observed; v1=previous reading
	EvtLate         = 5 // rearm delay <= 0; v1=lateness us
	EvtPinError     = 6 // pin write failed during a tick
	EvtCommandError = 7 // command handler failed; pin=low byte of command id
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether DebugPrintln output is active
	debugEnabled bool = false

	// Timing capture ring buffer, written from the tick
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  bool = true
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetTimingEnabled turns event capture on or off
func SetTimingEnabled(enabled bool) {
	lockRing()
	timingEnabled = enabled
	unlockRing()
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Never call it from the tick; use RecordTiming there.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTiming captures an event in the ring buffer. It never blocks, so it
// is safe from timer context.
func RecordTiming(eventType, pin uint8, clock, value1, value2 uint32) {
	lockRing()
	defer unlockRing()
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Pin:       pin,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the captured events, oldest first
func TimingEvents() []TimingEvent {
	lockRing()
	defer unlockRing()
	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

func eventName(eventType uint8) string {
	switch eventType {
	case EvtArm:
		return "ARM"
	case EvtStart:
		return "START"
	case EvtStop:
		return "STOP"
	case EvtWrap:
		return "WRAP"
	case EvtLate:
		return "LATE!"
	case EvtPinError:
		return "PIN_ERR"
	case EvtCommandError:
		return "CMD_ERR"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing writes the ring through the debug writer, oldest first.
// It bypasses the enabled flag; call it on shutdown or on host request.
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + eventName(evt.EventType) +
			" pin=" + itoa(int(evt.Pin)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	lockRing()
	defer unlockRing()
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
