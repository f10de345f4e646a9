//go:build rp2040

package main

import (
	"runtime/volatile"
	"softpwm/core"
	"unsafe"
)

// RP2040 timer peripheral. The counter runs at 1MHz from boot.
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x28
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// GetHardwareTime returns the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// UpdateSystemTime publishes the hardware counter to core.GetTime
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
