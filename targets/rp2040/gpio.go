//go:build rp2040

package main

import (
	"errors"
	"machine"
	"softpwm/core"
)

var errPullUnsupported = errors.New("pull resistors are not applied to outputs")

// RPGPIODriver drives the soft PWM channels on GPIO0-GPIO15
type RPGPIODriver struct {
	configured [core.MaxChannels]bool
}

// NewRPGPIODriver creates the on-chip GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

// ConfigureOutput configures pin as a push-pull output, initially low.
// Configuring an already configured pin is a no-op.
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin, pull core.PullMode) error {
	if pin >= core.MaxChannels {
		return core.ErrPinOutOfRange
	}
	if pull != core.PullNone {
		return errPullUnsupported
	}
	if d.configured[pin] {
		return nil
	}

	p := machine.Pin(pin)
	p.Low()
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured[pin] = true
	return nil
}

// SetPin drives a configured pin
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= core.MaxChannels || !d.configured[pin] {
		return core.ErrPinOutOfRange
	}
	machine.Pin(pin).Set(value)
	return nil
}
