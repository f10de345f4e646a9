package core

// mockGPIO records pin levels and writes for scheduler tests
type mockGPIO struct {
	levels     [MaxChannels]bool
	configured map[GPIOPin]PullMode
	highs      map[GPIOPin]int
	writes     map[GPIOPin]int
	history    map[GPIOPin][]bool
	failConfig map[GPIOPin]error
	failSet    map[GPIOPin]error
}

func newMockGPIO() *mockGPIO {
	return &mockGPIO{
		configured: make(map[GPIOPin]PullMode),
		highs:      make(map[GPIOPin]int),
		writes:     make(map[GPIOPin]int),
		history:    make(map[GPIOPin][]bool),
		failConfig: make(map[GPIOPin]error),
		failSet:    make(map[GPIOPin]error),
	}
}

func (m *mockGPIO) ConfigureOutput(pin GPIOPin, pull PullMode) error {
	if err := m.failConfig[pin]; err != nil {
		return err
	}
	m.configured[pin] = pull
	return nil
}

func (m *mockGPIO) SetPin(pin GPIOPin, value bool) error {
	if err := m.failSet[pin]; err != nil {
		return err
	}
	if pin < MaxChannels {
		m.levels[pin] = value
	}
	m.writes[pin]++
	if value {
		m.highs[pin]++
	}
	m.history[pin] = append(m.history[pin], value)
	return nil
}

// mockTimer is a TimerDriver with a hand-driven clock
type mockTimer struct {
	now     uint32
	armed   bool
	delay   int32
	fn      func()
	arms    int
	disarms int
}

func (m *mockTimer) Now() uint32 {
	return m.now
}

func (m *mockTimer) Arm(delay int32, fn func()) {
	m.armed = true
	m.delay = delay
	m.fn = fn
	m.arms++
}

func (m *mockTimer) Disarm() {
	m.armed = false
	m.disarms++
}

// fire advances the clock by the armed delay and runs the callback
func (m *mockTimer) fire() {
	if !m.armed {
		return
	}
	if m.delay > 0 {
		m.now += uint32(m.delay)
	}
	m.armed = false
	m.fn()
}
