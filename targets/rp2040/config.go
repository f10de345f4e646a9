//go:build rp2040

package main

import "machine"

// Build-time board settings
const (
	// TickFrequencyHz is the scheduler tick rate. The PWM period is 256 ticks.
	TickFrequencyHz = 1000

	// WarmupUS delays the first tick after the first channel is configured
	WarmupUS = 1000000

	// UseExpander drives the 16 channels through an MCP23017 on I2C0
	// instead of GPIO0-GPIO15.
	UseExpander     = false
	ExpanderAddress = 0x20
	ExpanderI2CHz   = 400000

	// Size of the USB receive FIFO
	inputBufferSize = 256
)

// Default I2C0 pins
var (
	expanderSDA = machine.GP4
	expanderSCL = machine.GP5
)
