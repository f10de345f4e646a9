package mcu

import (
	"net"
	"sync"
	"testing"
	"time"

	"softpwm/core"
	"softpwm/host/profile"
	"softpwm/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boardGPIO is the pin bank of the fake board
type boardGPIO struct {
	levels map[core.GPIOPin]bool
}

func (g *boardGPIO) ConfigureOutput(pin core.GPIOPin, pull core.PullMode) error {
	g.levels[pin] = false
	return nil
}

func (g *boardGPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.levels[pin] = value
	return nil
}

// fakeBoard runs the firmware command path on the far end of a pipe
type fakeBoard struct {
	sched *core.Scheduler
	cmds  *core.SoftPWMCommands
	gpio  *boardGPIO
	errs  []uint16
	wg    sync.WaitGroup
}

func startBoard(t *testing.T, conn net.Conn) *fakeBoard {
	t.Helper()
	b := &fakeBoard{gpio: &boardGPIO{levels: make(map[core.GPIOPin]bool)}}

	var err error
	b.sched, err = core.NewScheduler(core.Config{}, b.gpio, core.NewSoftTimer(func() uint32 { return 0 }))
	require.NoError(t, err)

	registry := core.NewCommandRegistry()
	b.cmds, err = core.RegisterSoftPWMCommands(registry, b.sched)
	require.NoError(t, err)

	output := protocol.NewScratchOutput()
	transport := protocol.NewTransport(output, registry.Dispatch)
	transport.SetErrorCallback(func(cmdID uint16, err error) {
		b.errs = append(b.errs, cmdID)
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		input := protocol.NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			input.Write(buf[:n])
			transport.Receive(input)
			if len(output.Result()) > 0 {
				if _, err := conn.Write(output.Result()); err != nil {
					return
				}
				output.Reset()
			}
		}
	}()
	return b
}

func connectFake(t *testing.T) (*MCU, *fakeBoard, func()) {
	hostConn, boardConn := net.Pipe()
	board := startBoard(t, boardConn)
	m := New(hostConn)
	m.SetTimeout(time.Second)

	return m, board, func() {
		m.Close()
		boardConn.Close()
		board.wg.Wait()
	}
}

func TestChannelLifecycle(t *testing.T) {
	m, board, shutdown := connectFake(t)

	require.NoError(t, m.ConfigChannel(1, 6))
	require.NoError(t, m.SetDuty(1, 190))
	require.NoError(t, m.Stop(1))
	require.NoError(t, m.Start(1))
	shutdown()

	ch := board.cmds.Channel(1)
	require.NotNil(t, ch)
	assert.Equal(t, core.GPIOPin(6), ch.Pin())
	assert.Equal(t, uint8(190), ch.Value())
	assert.Same(t, ch, board.sched.Channel(6))
	assert.Empty(t, board.errs)
}

func TestStopAll(t *testing.T) {
	m, board, shutdown := connectFake(t)

	require.NoError(t, m.ConfigChannel(0, 0))
	require.NoError(t, m.ConfigChannel(1, 1))
	require.NoError(t, m.StopAll())
	shutdown()

	assert.Equal(t, 0, board.sched.Stats().Active)
	assert.False(t, board.gpio.levels[0])
	assert.False(t, board.gpio.levels[1])
}

func TestApplyProfile(t *testing.T) {
	p, err := profile.Parse([]byte(`
channels:
  - {name: heater, pin: 3, duty: 40}
  - {name: spare, pin: 4, duty: 10, enabled: false}
`))
	require.NoError(t, err)

	m, board, shutdown := connectFake(t)
	require.NoError(t, m.ApplyProfile(p))
	shutdown()

	heater := board.cmds.Channel(0)
	require.NotNil(t, heater)
	assert.Equal(t, uint8(40), heater.Value())
	assert.Same(t, heater, board.sched.Channel(3))

	spare := board.cmds.Channel(1)
	require.NotNil(t, spare)
	assert.Equal(t, uint8(10), spare.Value())
	assert.Nil(t, board.sched.Channel(4), "disabled channel must be stopped")
}

func TestResetFreesOIDs(t *testing.T) {
	m, board, shutdown := connectFake(t)

	require.NoError(t, m.ConfigChannel(0, 2))
	require.NoError(t, m.SetDuty(0, 255))
	require.NoError(t, m.Reset())
	require.NoError(t, m.ConfigChannel(0, 7))
	shutdown()

	assert.Empty(t, board.errs, "oid 0 must be free after reset")
	assert.False(t, board.gpio.levels[2])
	assert.Nil(t, board.sched.Channel(2))
	assert.Same(t, board.cmds.Channel(0), board.sched.Channel(7))
}

func TestSendCommandValidation(t *testing.T) {
	m, board, shutdown := connectFake(t)
	defer shutdown()

	assert.Error(t, m.SendCommand("warp_drive"))
	assert.Error(t, m.SendCommand("set_soft_pwm", 1))
	assert.Empty(t, board.errs)
}

func TestBoardRejectsBadPin(t *testing.T) {
	m, board, shutdown := connectFake(t)

	// The board ACKs the block even when the handler fails
	require.NoError(t, m.ConfigChannel(2, 99))
	shutdown()

	assert.Equal(t, []uint16{protocol.CmdConfigSoftPWM}, board.errs)
	assert.Nil(t, board.cmds.Channel(2))
}

func TestClosed(t *testing.T) {
	m, _, shutdown := connectFake(t)
	shutdown()

	assert.False(t, m.IsConnected())
	assert.ErrorIs(t, m.StopAll(), ErrNotConnected)
	assert.NoError(t, m.Close())
}

func TestArgCount(t *testing.T) {
	assert.Equal(t, 2, argCount("oid=%c pin=%u"))
	assert.Equal(t, 0, argCount(""))
}
