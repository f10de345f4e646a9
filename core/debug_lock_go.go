//go:build !tinygo

package core

import "sync"

// On the host the tick runs on a timer goroutine, so the ring needs a lock.
var ringMu sync.Mutex

func lockRing()   { ringMu.Lock() }
func unlockRing() { ringMu.Unlock() }
