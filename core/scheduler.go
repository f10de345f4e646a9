// Soft PWM scheduler
// Multiplexes one self-rearming one-shot timer across every registered
// channel. Each tick adds a channel's setpoint to its accumulator and drives
// the pin from the carry, which spreads the on-ticks evenly over the
// 256-tick PWM period.
package core

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrGPIOConfig is returned by Init when the GPIO driver refuses to
// configure the pin as an output.
var ErrGPIOConfig = errors.New("gpio configuration failed")

// Scheduler owns the channel table and the tick timing state.
//
// Init, Start, Stop and Channel.Set run in normal context. The tick runs in
// timer context and is the only code touching the accumulators and the
// timing fields below.
type Scheduler struct {
	cfg   Config
	gpio  GPIODriver
	timer TimerDriver

	registry Registry
	running  atomic.Bool

	// Tick timing state, owned by the tick once armed
	timeDelta float64 // ideal tick period in microseconds
	lastTime  uint32  // previous masked clock reading
	nextTime  float64 // ideal deadline of the next tick

	ticks     atomic.Uint32
	late      atomic.Uint32
	wraps     atomic.Uint32
	pinErrors atomic.Uint32
}

// Stats is a snapshot of scheduler counters
type Stats struct {
	Ticks     uint32 // ticks processed
	Late      uint32 // rearms with a delay of zero or less
	Wraps     uint32 // clock wraparounds observed
	PinErrors uint32 // failed pin writes
	Active    int    // channels currently registered
}

// NewScheduler creates a scheduler. Nothing is armed until the first
// successful Init.
func NewScheduler(cfg Config, gpio GPIODriver, timer TimerDriver) (*Scheduler, error) {
	if gpio == nil || timer == nil {
		return nil, wrapError(ErrInvalidConfig, errors.New("gpio and timer drivers are required"))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:       cfg,
		gpio:      gpio,
		timer:     timer,
		timeDelta: cfg.TimeDelta(),
	}, nil
}

// Config returns the settings the scheduler runs with
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Init configures pin as an output and registers a new channel on it with a
// zero setpoint. The first successful Init arms the tick timer.
//
// On failure nothing is registered and the timer is left alone.
func (s *Scheduler) Init(pin GPIOPin) (*Channel, error) {
	if pin >= MaxChannels {
		return nil, ErrPinOutOfRange
	}
	if err := s.gpio.ConfigureOutput(pin, PullNone); err != nil {
		DebugPrintln("[SOFTPWM] config failed pin=" + utoa(uint32(pin)))
		return nil, wrapError(ErrGPIOConfig, err)
	}

	ch := newChannel(pin)
	s.arm()
	s.registry.Register(pin, ch)
	RecordTiming(EvtStart, uint8(pin), s.timer.Now(), 0, 0)
	return ch, nil
}

// Start registers ch again. Its accumulator resumes from the value it had
// when it was stopped.
func (s *Scheduler) Start(ch *Channel) {
	if ch == nil {
		return
	}
	s.registry.Register(ch.pin, ch)
	RecordTiming(EvtStart, uint8(ch.pin), s.timer.Now(), uint32(ch.Value()), 0)
}

// Stop removes ch from the table. The pin keeps whatever level the last tick
// drove it to; callers that need an idle level must set it themselves.
// Stopping a channel that is not registered is a no-op.
func (s *Scheduler) Stop(ch *Channel) {
	if ch == nil {
		return
	}
	if s.registry.UnregisterChannel(ch) {
		RecordTiming(EvtStop, uint8(ch.pin), s.timer.Now(), uint32(ch.Value()), 0)
	}
}

// StopAll removes every channel and drives its pin to level. Used for
// shutdown and host-requested idle.
func (s *Scheduler) StopAll(level bool) {
	for pin := GPIOPin(0); pin < MaxChannels; pin++ {
		ch := s.registry.Load(pin)
		if ch == nil {
			continue
		}
		s.Stop(ch)
		if err := s.gpio.SetPin(pin, level); err != nil {
			s.pinErrors.Add(1)
		}
	}
}

// Channel returns the channel registered on pin, or nil
func (s *Scheduler) Channel(pin GPIOPin) *Channel {
	return s.registry.Load(pin)
}

// Running reports whether the tick timer has been armed
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stats returns a snapshot of the scheduler counters
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Late:      s.late.Load(),
		Wraps:     s.wraps.Load(),
		PinErrors: s.pinErrors.Load(),
		Active:    s.registry.Active(),
	}
}

// arm starts the tick timer once per scheduler lifetime
func (s *Scheduler) arm() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	now := s.timer.Now() & ClockMask
	s.lastTime = now
	s.nextTime = float64(now) + float64(s.cfg.WarmupUS)

	s.timer.Disarm()
	s.timer.Arm(int32(s.cfg.WarmupUS), s.fire)

	RecordTiming(EvtArm, 0, now, s.cfg.WarmupUS, uint32(s.timeDelta))
	DebugPrintln("[SOFTPWM] armed, first tick in " + utoa(s.cfg.WarmupUS) + "us")
}

// fire is the timer callback: one tick, then rearm for the next one
func (s *Scheduler) fire() {
	delay := s.Tick(s.timer.Now())
	s.timer.Arm(delay, s.fire)
}

// Tick runs one scheduler step at clock reading now and returns the delay in
// microseconds until the next tick should fire. It does not touch the timer,
// so it can be driven with synthetic clock readings.
func (s *Scheduler) Tick(now uint32) int32 {
	s.ticks.Add(1)

	for i := range s.registry.slots {
		ch := s.registry.slots[i].Load()
		if ch == nil {
			continue
		}
		if err := s.gpio.SetPin(ch.pin, ch.step()); err != nil {
			s.pinErrors.Add(1)
			RecordTiming(EvtPinError, uint8(i), now, 0, 0)
		}
	}

	return s.nextDelay(now & ClockMask)
}

// nextDelay advances the ideal deadline by one period and converts it to a
// rearm delay. The deadline is kept in floating point so the rounding of one
// tick is absorbed by the next instead of accumulating as drift.
func (s *Scheduler) nextDelay(now uint32) int32 {
	if now < s.lastTime {
		// The masked counter wrapped; move the deadline into the new epoch.
		s.nextTime -= ClockWrap
		s.wraps.Add(1)
		RecordTiming(EvtWrap, 0, now, s.lastTime, 0)
	}
	s.lastTime = now
	s.nextTime += s.timeDelta

	delay := int32(int64(math.Round(s.nextTime)) - int64(now))
	if delay <= 0 {
		s.late.Add(1)
		RecordTiming(EvtLate, 0, now, uint32(-delay), 0)
	}
	return delay
}
