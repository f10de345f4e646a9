package core

import "sync/atomic"

// MaxChannels is the size of the channel table. Pin numbers index the table
// directly, so only pins 0-15 can carry a soft PWM channel.
const MaxChannels = 16

// Channel is one soft PWM output.
//
// The setpoint is written from normal context and read by the tick, so it is
// stored atomically. The accumulator belongs to the tick and is never reset:
// a channel that is stopped and started again picks up where it left off.
type Channel struct {
	pin      GPIOPin
	setPoint atomic.Uint32 // 0-255, duty = setPoint/256
	acc      uint16        // tick-owned, bit 8 is the carry
}

func newChannel(pin GPIOPin) *Channel {
	return &Channel{pin: pin}
}

// Pin returns the output pin driven by the channel.
func (c *Channel) Pin() GPIOPin {
	return c.pin
}

// Set changes the duty cycle to value/256. It may be called at any time,
// the next tick picks up the new value.
func (c *Channel) Set(value uint8) {
	c.setPoint.Store(uint32(value))
}

// Value returns the current setpoint.
func (c *Channel) Value() uint8 {
	return uint8(c.setPoint.Load())
}

// step advances the accumulator by one tick and returns the level the pin
// should be driven to.
func (c *Channel) step() bool {
	c.acc += uint16(c.setPoint.Load())
	on := c.acc&0x100 != 0
	c.acc &= 0xFF
	return on
}
