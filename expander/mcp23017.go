// Package expander drives soft PWM channels through an MCP23017 16-pin I2C
// GPIO expander. One chip covers the whole channel table: expander pin N is
// soft PWM pin N.
package expander

import (
	"errors"
	"sync"

	"softpwm/core"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/mcp23017"
)

// DefaultAddress is the chip address with A0-A2 tied low
const DefaultAddress = 0x20

var (
	// ErrPinRange is returned for pins the chip does not have
	ErrPinRange = errors.New("expander pin out of range")

	// ErrPullUnsupported is returned for pull settings an output cannot have
	ErrPullUnsupported = errors.New("pull resistor not supported on expander outputs")
)

// Driver implements core.GPIODriver on an MCP23017.
//
// The chip caches its output latch, so writing a level the pin already has
// costs no bus transaction. At soft PWM duty cycles near 0 or 255 most
// ticks are free.
type Driver struct {
	mu  sync.Mutex // the tick and StopAll may race on host builds
	dev *mcp23017.Device
}

// New opens the expander at addr on bus
func New(bus drivers.I2C, addr uint8) (*Driver, error) {
	dev, err := mcp23017.NewI2C(bus, addr)
	if err != nil {
		return nil, err
	}
	return &Driver{dev: dev}, nil
}

// ConfigureOutput implements core.GPIODriver. The latch is driven low before
// the direction changes so the pin never glitches high.
func (d *Driver) ConfigureOutput(pin core.GPIOPin, pull core.PullMode) error {
	if pin >= mcp23017.PinCount {
		return ErrPinRange
	}
	if pull != core.PullNone {
		return ErrPullUnsupported
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.dev.Pin(int(pin))
	if err := p.Set(false); err != nil {
		return err
	}
	return p.SetMode(mcp23017.Output)
}

// SetPin implements core.GPIODriver
func (d *Driver) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= mcp23017.PinCount {
		return ErrPinRange
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.Pin(int(pin)).Set(value)
}
