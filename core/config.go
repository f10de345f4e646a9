package core

import "errors"

// Defaults for Config fields left at zero
const (
	DefaultFrequencyHz = 1000    // tick rate; the PWM period is 256 ticks
	DefaultWarmupUS    = 1000000 // delay before the first tick
)

// ErrInvalidConfig is returned by NewScheduler for unusable settings
var ErrInvalidConfig = errors.New("invalid soft PWM config")

// Config holds the scheduler settings. They are fixed for the lifetime of a
// Scheduler.
type Config struct {
	// FrequencyHz is the tick rate. Every channel is updated once per tick.
	FrequencyHz float64

	// WarmupUS delays the first tick after the scheduler is armed so the
	// first edge does not land on top of boot-time activity.
	WarmupUS uint32
}

// DefaultConfig returns a Config with all defaults applied
func DefaultConfig() Config {
	return Config{
		FrequencyHz: DefaultFrequencyHz,
		WarmupUS:    DefaultWarmupUS,
	}
}

// applyDefaults fills in zero fields
func (c *Config) applyDefaults() {
	if c.FrequencyHz == 0 {
		c.FrequencyHz = DefaultFrequencyHz
	}
	if c.WarmupUS == 0 {
		c.WarmupUS = DefaultWarmupUS
	}
}

// Validate checks that the tick period fits the microsecond clock
func (c Config) Validate() error {
	if !(c.FrequencyHz > 0) {
		return wrapError(ErrInvalidConfig, errors.New("frequency must be positive"))
	}
	if c.FrequencyHz > ClockFreq {
		return wrapError(ErrInvalidConfig, errors.New("tick period below one microsecond"))
	}
	if c.TimeDelta() >= ClockWrap/2 {
		return wrapError(ErrInvalidConfig, errors.New("tick period exceeds half the clock wrap"))
	}
	if c.WarmupUS >= ClockWrap/2 {
		return wrapError(ErrInvalidConfig, errors.New("warmup exceeds half the clock wrap"))
	}
	return nil
}

// TimeDelta returns the ideal tick period in microseconds
func (c Config) TimeDelta() float64 {
	return ClockFromHz(c.FrequencyHz)
}

// PWMFrequency returns the resulting PWM frequency of a channel, one full
// accumulator cycle every 256 ticks.
func (c Config) PWMFrequency() float64 {
	return c.FrequencyHz / 256
}
