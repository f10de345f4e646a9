//go:build tinygo

package core

import "sync/atomic"

// The firmware main loop publishes the hardware counter here; the USB reader
// goroutine may read it concurrently.
var systemClock uint32

func getSystemTicks() uint32 {
	return atomic.LoadUint32(&systemClock)
}

func setSystemTicks(us uint32) {
	atomic.StoreUint32(&systemClock, us)
}
