package core

// The scheduler works in microseconds on a counter that wraps at 2^31.
const (
	ClockFreq = 1000000    // 1MHz microsecond clock
	ClockMask = 0x7FFFFFFF // low 31 bits of the hardware counter
	ClockWrap = 1 << 31    // period of the masked counter
)

// GetTime returns the current system time in microseconds
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// ClockFromHz returns the tick period in microseconds for a frequency in Hz
func ClockFromHz(hz float64) float64 {
	return ClockFreq / hz
}

// clockBefore reports whether a is earlier than b on a free-running 32-bit
// counter, assuming the two are less than half a wrap apart.
func clockBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
