// Package serial opens the link to a soft PWM controller board
package serial

import (
	"io"
)

// Port is the byte stream the host transport runs on. Tests substitute an
// in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data buffered in either direction
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate. USB CDC ignores it but UART bridges need it.
	Baud int `yaml:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `yaml:"read_timeout_ms"`
}

// Defaults for Config fields left at zero
const (
	DefaultBaud        = 250000
	DefaultReadTimeout = 100
)

// DefaultConfig returns a configuration for device with default settings
func DefaultConfig(device string) *Config {
	cfg := &Config{Device: device}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in zero fields
func (c *Config) ApplyDefaults() {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}
