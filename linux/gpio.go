// Package linux runs the soft PWM scheduler on a Linux board: pins through
// periph.io and the tick on Go timers.
package linux

import (
	"errors"
	"fmt"
	"sync"

	"softpwm/core"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var (
	// ErrPinNotFound is returned when no periph pin carries the mapped name
	ErrPinNotFound = errors.New("pin not found")

	// ErrNotConfigured is returned by SetPin before ConfigureOutput
	ErrNotConfigured = errors.New("pin not configured as output")
)

// GPIO implements core.GPIODriver on periph.io pins. Soft PWM pin numbers
// are mapped to periph pin names; unmapped pins use "GPIO<n>".
type GPIO struct {
	mu     sync.RWMutex
	lookup func(name string) gpio.PinIO
	names  map[core.GPIOPin]string
	pins   [core.MaxChannels]gpio.PinIO
}

// NewGPIO creates a driver with an optional pin name map. periph host
// drivers must already be loaded (host.Init).
func NewGPIO(names map[core.GPIOPin]string) *GPIO {
	return &GPIO{
		lookup: gpioreg.ByName,
		names:  names,
	}
}

// PinName returns the periph pin name soft PWM pin maps to
func (g *GPIO) PinName(pin core.GPIOPin) string {
	if name, ok := g.names[pin]; ok {
		return name
	}
	return fmt.Sprintf("GPIO%d", pin)
}

// ConfigureOutput implements core.GPIODriver. The pin starts low.
func (g *GPIO) ConfigureOutput(pin core.GPIOPin, pull core.PullMode) error {
	if pin >= core.MaxChannels {
		return core.ErrPinOutOfRange
	}
	if pull != core.PullNone {
		return fmt.Errorf("pin %d: pull resistors apply to inputs only", pin)
	}

	name := g.PinName(pin)
	p := g.lookup(name)
	if p == nil {
		return fmt.Errorf("pin %d (%s): %w", pin, name, ErrPinNotFound)
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("set pin %d (%s) to output: %w", pin, name, err)
	}

	g.mu.Lock()
	g.pins[pin] = p
	g.mu.Unlock()
	return nil
}

// SetPin implements core.GPIODriver
func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= core.MaxChannels {
		return core.ErrPinOutOfRange
	}

	g.mu.RLock()
	p := g.pins[pin]
	g.mu.RUnlock()
	if p == nil {
		return ErrNotConfigured
	}

	level := gpio.Low
	if value {
		level = gpio.High
	}
	return p.Out(level)
}

// Halt drives every configured pin low
func (g *GPIO) Halt() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for _, p := range g.pins {
		if p == nil {
			continue
		}
		if err := p.Out(gpio.Low); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
