// Package profile loads soft PWM channel profiles: which pins carry a
// channel, their starting duty and the tick rate, plus the serial link for
// the host tool.
package profile

import (
	"errors"
	"fmt"
	"os"

	"softpwm/core"
	"softpwm/host/serial"

	"gopkg.in/yaml.v3"
)

// ErrInvalidProfile wraps every validation failure
var ErrInvalidProfile = errors.New("invalid profile")

// Profile describes one soft PWM setup
type Profile struct {
	Serial      serial.Config `yaml:"serial"`
	FrequencyHz float64       `yaml:"frequency_hz"`
	WarmupMS    uint32        `yaml:"warmup_ms"`
	Channels    []Channel     `yaml:"channels"`
}

// Channel is one named output
type Channel struct {
	Name string `yaml:"name"`
	Pin  uint32 `yaml:"pin"`

	// PinName overrides the Linux pin name (default "GPIO<pin>")
	PinName string `yaml:"pin_name,omitempty"`

	// Duty is the starting setpoint, 0-255
	Duty uint8 `yaml:"duty"`

	// Enabled starts the channel right after configuration. Defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the channel starts running
func (c Channel) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Load reads and parses a profile file
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML profile, applies defaults and validates it
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	applyDefaults(&p)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// applyDefaults fills in missing values
func applyDefaults(p *Profile) {
	p.Serial.ApplyDefaults()

	if p.FrequencyHz == 0 {
		p.FrequencyHz = core.DefaultFrequencyHz
	}
	if p.WarmupMS == 0 {
		p.WarmupMS = core.DefaultWarmupUS / 1000
	}

	for i := range p.Channels {
		if p.Channels[i].Name == "" {
			p.Channels[i].Name = fmt.Sprintf("pwm%d", p.Channels[i].Pin)
		}
	}
}

// Validate checks pin ranges, duplicate pins and names, and the scheduler
// settings
func (p *Profile) Validate() error {
	// Checked before SchedulerConfig converts to microseconds in 32 bits
	if uint64(p.WarmupMS)*1000 >= core.ClockWrap/2 {
		return fmt.Errorf("%w: warmup_ms %d exceeds %d", ErrInvalidProfile, p.WarmupMS, (core.ClockWrap/2-1)/1000)
	}
	if err := p.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if len(p.Channels) > core.MaxChannels {
		return fmt.Errorf("%w: %d channels, at most %d", ErrInvalidProfile, len(p.Channels), core.MaxChannels)
	}

	pins := make(map[uint32]string)
	names := make(map[string]bool)
	for _, ch := range p.Channels {
		if ch.Pin >= core.MaxChannels {
			return fmt.Errorf("%w: channel %q: pin %d outside 0-%d", ErrInvalidProfile, ch.Name, ch.Pin, core.MaxChannels-1)
		}
		if other, ok := pins[ch.Pin]; ok {
			return fmt.Errorf("%w: channels %q and %q share pin %d", ErrInvalidProfile, other, ch.Name, ch.Pin)
		}
		if names[ch.Name] {
			return fmt.Errorf("%w: duplicate channel name %q", ErrInvalidProfile, ch.Name)
		}
		pins[ch.Pin] = ch.Name
		names[ch.Name] = true
	}
	return nil
}

// SchedulerConfig returns the scheduler settings of the profile
func (p *Profile) SchedulerConfig() core.Config {
	return core.Config{
		FrequencyHz: p.FrequencyHz,
		WarmupUS:    p.WarmupMS * 1000,
	}
}

// PinNames returns the Linux pin name overrides keyed by pin
func (p *Profile) PinNames() map[core.GPIOPin]string {
	names := make(map[core.GPIOPin]string)
	for _, ch := range p.Channels {
		if ch.PinName != "" {
			names[core.GPIOPin(ch.Pin)] = ch.PinName
		}
	}
	return names
}

// Channel returns the channel called name and its index
func (p *Profile) Channel(name string) (Channel, int, bool) {
	for i, ch := range p.Channels {
		if ch.Name == name {
			return ch, i, true
		}
	}
	return Channel{}, -1, false
}

// Default returns a profile with one channel per pin, all idle
func Default(device string) *Profile {
	p := &Profile{Serial: serial.Config{Device: device}}
	disabled := false
	for pin := uint32(0); pin < core.MaxChannels; pin++ {
		p.Channels = append(p.Channels, Channel{Pin: pin, Enabled: &disabled})
	}
	applyDefaults(p)
	return p
}
