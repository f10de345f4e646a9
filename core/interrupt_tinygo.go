//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks interrupts while the soft timer list is edited
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state saved by disableInterrupts
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
