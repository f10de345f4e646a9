package core

import (
	"errors"
	"softpwm/protocol"
)

var (
	// ErrOIDInUse is returned by config_soft_pwm for an oid that is already configured
	ErrOIDInUse = errors.New("oid already configured")

	// ErrValueRange is returned by set_soft_pwm for values above 255
	ErrValueRange = errors.New("soft PWM value out of range")

	// ErrOIDRange is returned for an oid above 255
	ErrOIDRange = errors.New("oid out of range")
)

// SoftPWMCommands binds the soft PWM commands to a scheduler. Channels are
// addressed by the host-chosen object ID (oid).
type SoftPWMCommands struct {
	sched    *Scheduler
	channels map[uint8]*Channel
}

// RegisterSoftPWMCommands registers the soft PWM command set on r
func RegisterSoftPWMCommands(r *CommandRegistry, s *Scheduler) (*SoftPWMCommands, error) {
	c := &SoftPWMCommands{
		sched:    s,
		channels: make(map[uint8]*Channel),
	}

	handlers := map[uint16]CommandHandler{
		protocol.CmdConfigSoftPWM:  c.handleConfig,
		protocol.CmdSetSoftPWM:     c.handleSet,
		protocol.CmdStartSoftPWM:   c.handleStart,
		protocol.CmdStopSoftPWM:    c.handleStop,
		protocol.CmdStopAllSoftPWM: c.handleStopAll,
		protocol.CmdResetSoftPWM:   c.handleReset,
	}
	for _, info := range protocol.Commands {
		if err := r.Register(info.ID, info.Name, info.Format, handlers[info.ID]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Channel returns the channel configured under oid, or nil
func (c *SoftPWMCommands) Channel(oid uint8) *Channel {
	return c.channels[oid]
}

// handleConfig creates a channel on a pin
// Format: config_soft_pwm oid=%c pin=%u
func (c *SoftPWMCommands) handleConfig(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}

	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if _, exists := c.channels[oid]; exists {
		return ErrOIDInUse
	}

	ch, err := c.sched.Init(GPIOPin(pin))
	if err != nil {
		return err
	}
	c.channels[oid] = ch

	DebugPrintln("[SOFTPWM] config oid=" + utoa(uint32(oid)) + " pin=" + utoa(pin))
	return nil
}

// handleSet changes the duty of a channel
// Format: set_soft_pwm oid=%c value=%c
func (c *SoftPWMCommands) handleSet(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}

	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if value > 0xFF {
		return ErrValueRange
	}

	ch, exists := c.channels[oid]
	if !exists {
		return nil // Silently ignore unknown oid
	}
	ch.Set(uint8(value))
	return nil
}

// handleStart resumes a stopped channel
// Format: start_soft_pwm oid=%c
func (c *SoftPWMCommands) handleStart(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}

	if ch, exists := c.channels[oid]; exists {
		c.sched.Start(ch)
	}
	return nil
}

// handleStop stops a channel, leaving its pin at the last level
// Format: stop_soft_pwm oid=%c
func (c *SoftPWMCommands) handleStop(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}

	if ch, exists := c.channels[oid]; exists {
		c.sched.Stop(ch)
	}
	return nil
}

// handleStopAll stops every channel and drives its pin low
// Format: stop_all_soft_pwm
func (c *SoftPWMCommands) handleStopAll(data *[]byte) error {
	c.sched.StopAll(false)
	DebugPrintln("[SOFTPWM] all channels stopped")
	return nil
}

// handleReset returns the board to its power-on state
// Format: reset_soft_pwm
func (c *SoftPWMCommands) handleReset(data *[]byte) error {
	c.Reset()
	DebugPrintln("[SOFTPWM] reset")
	return nil
}

// decodeOID reads an oid argument
func decodeOID(data *[]byte) (uint8, error) {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, err
	}
	if oid > 0xFF {
		return 0, ErrOIDRange
	}
	return uint8(oid), nil
}

// Reset stops every channel, drives the pins low and forgets all oids so the
// host can configure from scratch.
func (c *SoftPWMCommands) Reset() {
	c.sched.StopAll(false)
	for oid := range c.channels {
		delete(c.channels, oid)
	}
}
