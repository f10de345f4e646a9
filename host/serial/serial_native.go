//go:build !wasm

package serial

import (
	"errors"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// NativePort is a Port on an OS serial device
type NativePort struct {
	port   *serial.Port
	device string
}

// Open opens the device named in cfg. Zero fields take their defaults.
func Open(cfg *Config) (*NativePort, error) {
	if cfg == nil {
		return nil, errors.New("serial config is required")
	}
	c := *cfg
	c.ApplyDefaults()

	port, err := serial.OpenPort(&serial.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: time.Duration(c.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", c.Device, err)
	}

	// Drop anything the board sent before we were listening
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush serial port %s: %w", c.Device, err)
	}

	return &NativePort{port: port, device: c.Device}, nil
}

// Read implements io.Reader
func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write implements io.Writer
func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the device
func (p *NativePort) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

// Flush discards unread input and unsent output
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// Device returns the device path the port was opened on
func (p *NativePort) Device() string {
	return p.device
}
