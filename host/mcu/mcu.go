// Package mcu drives a soft PWM controller board over the host transport
package mcu

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"softpwm/host/profile"
	"softpwm/host/serial"
	"softpwm/protocol"
)

// ErrNotConnected is returned after Close
var ErrNotConnected = errors.New("not connected to MCU")

// MCU is a connection to a soft PWM controller
type MCU struct {
	transport *protocol.HostTransport
	port      io.ReadWriteCloser
	timeout   time.Duration
	connected bool
}

// Connect opens a serial device and attaches an MCU to it
func Connect(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}

	m := New(port)

	// Give the board time to settle if it was just enumerated
	time.Sleep(100 * time.Millisecond)

	// Start from a clean board; channels from an earlier session would
	// otherwise keep their oids.
	if err := m.Reset(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// New attaches an MCU to an already open port
func New(port io.ReadWriteCloser) *MCU {
	return &MCU{
		transport: protocol.NewHostTransport(port),
		port:      port,
		timeout:   2 * time.Second,
		connected: true,
	}
}

// SetTimeout changes how long each command waits for its ACK
func (m *MCU) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// Close closes the transport and the port
func (m *MCU) Close() error {
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.transport.Close()
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

// SendCommand sends a command by name. args must match the command format.
func (m *MCU) SendCommand(name string, args ...uint32) error {
	if !m.connected {
		return ErrNotConnected
	}

	info, ok := protocol.LookupCommand(name)
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	if want := argCount(info.Format); len(args) != want {
		return fmt.Errorf("%s: expected %d arguments, got %d", name, want, len(args))
	}

	err := m.transport.SendCommandWithTimeout(info.ID, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	}, m.timeout)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ConfigChannel creates channel oid on pin
func (m *MCU) ConfigChannel(oid uint8, pin uint32) error {
	return m.SendCommand("config_soft_pwm", uint32(oid), pin)
}

// SetDuty sets the duty of channel oid to value/256
func (m *MCU) SetDuty(oid uint8, value uint8) error {
	return m.SendCommand("set_soft_pwm", uint32(oid), uint32(value))
}

// Start resumes channel oid
func (m *MCU) Start(oid uint8) error {
	return m.SendCommand("start_soft_pwm", uint32(oid))
}

// Stop stops channel oid, leaving its pin at the last level
func (m *MCU) Stop(oid uint8) error {
	return m.SendCommand("stop_soft_pwm", uint32(oid))
}

// StopAll stops every channel and drives the pins low
func (m *MCU) StopAll() error {
	return m.SendCommand("stop_all_soft_pwm")
}

// Reset stops every channel, drives the pins low and frees all oids
func (m *MCU) Reset() error {
	return m.SendCommand("reset_soft_pwm")
}

// ApplyProfile configures every channel of p. The channel index in the
// profile is its oid.
func (m *MCU) ApplyProfile(p *profile.Profile) error {
	for i, ch := range p.Channels {
		oid := uint8(i)
		if err := m.ConfigChannel(oid, ch.Pin); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		if err := m.SetDuty(oid, ch.Duty); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		if !ch.IsEnabled() {
			if err := m.Stop(oid); err != nil {
				return fmt.Errorf("channel %q: %w", ch.Name, err)
			}
		}
	}
	return nil
}

// argCount counts the name=%x fields of a command format
func argCount(format string) int {
	return len(strings.Fields(format))
}
