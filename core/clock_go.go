//go:build !tinygo

package core

// Host builds drive the clock from tests or a simulation loop, which run on
// a single goroutine.
var systemClock uint32

func getSystemTicks() uint32 {
	return systemClock
}

func setSystemTicks(us uint32) {
	systemClock = us
}
