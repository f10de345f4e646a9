package core

import (
	"errors"
	"sync/atomic"
)

// ErrPinOutOfRange is returned for pins that do not fit the channel table.
var ErrPinOutOfRange = errors.New("pin outside soft PWM channel table")

// Registry is the fixed table of active channels, one slot per pin.
//
// Slots are written from normal context (Register/Unregister) and read from
// the tick. Each slot is an atomic pointer, so a tick sees either the old or
// the new occupant and never a partially written one.
type Registry struct {
	slots [MaxChannels]atomic.Pointer[Channel]
}

// Register stores ch in slot pin, replacing any previous occupant.
func (r *Registry) Register(pin GPIOPin, ch *Channel) error {
	if pin >= MaxChannels {
		return ErrPinOutOfRange
	}
	r.slots[pin].Store(ch)
	return nil
}

// Unregister clears slot pin. Clearing an empty slot is a no-op.
func (r *Registry) Unregister(pin GPIOPin) {
	if pin >= MaxChannels {
		return
	}
	r.slots[pin].Store(nil)
}

// UnregisterChannel clears the slot of ch only if ch still occupies it.
// Returns false when the slot was empty or held a different channel.
func (r *Registry) UnregisterChannel(ch *Channel) bool {
	if ch == nil || ch.pin >= MaxChannels {
		return false
	}
	return r.slots[ch.pin].CompareAndSwap(ch, nil)
}

// Load returns the channel registered on pin, or nil.
func (r *Registry) Load(pin GPIOPin) *Channel {
	if pin >= MaxChannels {
		return nil
	}
	return r.slots[pin].Load()
}

// Active returns the number of occupied slots.
func (r *Registry) Active() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].Load() != nil {
			n++
		}
	}
	return n
}
