package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// PullMode selects the pull resistor applied when a pin is configured
type PullMode uint8

const (
	PullNone PullMode = iota
	PullUp
	PullDown
)

// GPIODriver is the abstract GPIO interface the scheduler drives.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if the pin cannot be driven as an output
	ConfigureOutput(pin GPIOPin, pull PullMode) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error
}
