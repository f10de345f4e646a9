package core

// TimerDriver is the one-shot timer facility the scheduler rearms from
// inside its own callback.
type TimerDriver interface {
	// Now returns the free-running microsecond clock. The scheduler only
	// uses the low 31 bits.
	Now() uint32

	// Arm schedules fn to run once after delay microseconds, replacing any
	// pending arm. A delay of zero or less fires as soon as possible.
	Arm(delay int32, fn func())

	// Disarm cancels a pending arm, if any.
	Disarm()
}
