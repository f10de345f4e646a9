//go:build !tinygo

package core

// State is a placeholder for interrupt state on regular Go
type State uintptr

// disableInterrupts is a no-op on regular Go; SoftTimer users on the host
// drive Dispatch from a single goroutine.
func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {}
