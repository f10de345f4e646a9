//go:build rp2040

package main

import (
	"machine"
	"softpwm/core"
	"softpwm/protocol"
	"time"
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	softTimer    *core.SoftTimer
	pwmCommands  *core.SoftPWMCommands

	// Debug counters
	messagesReceived uint32
	msgerrors        uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left from a previous reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	if err := InitUSB(); err != nil {
		return
	}
	UpdateSystemTime()

	gpio, err := newGPIODriver()
	if err != nil {
		halt()
	}

	softTimer = core.NewSoftTimer(core.GetTime)
	sched, err := core.NewScheduler(core.Config{
		FrequencyHz: TickFrequencyHz,
		WarmupUS:    WarmupUS,
	}, gpio, softTimer)
	if err != nil {
		halt()
	}

	registry := core.NewCommandRegistry()
	pwmCommands, err = core.RegisterSoftPWMCommands(registry, sched)
	if err != nil {
		halt()
	}

	inputBuffer = protocol.NewFifoBuffer(inputBufferSize)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, registry.Dispatch)
	// USB reconnect: back to a safe idle. A restarting host sends
	// reset_soft_pwm itself.
	transport.SetResetCallback(pwmCommands.Reset)
	// The host waits for the ACK before sending the next block
	transport.SetFlushCallback(writeUSB)
	transport.SetErrorCallback(func(cmdID uint16, err error) {
		msgerrors++
		core.RecordTiming(core.EvtCommandError, uint8(cmdID), core.GetTime(), msgerrors, 0)
	})

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				input := protocol.NewSliceInputBuffer(data)

				transport.Receive(input)
				messagesReceived++

				if consumed := originalLen - input.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			softTimer.Process()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// newGPIODriver selects the pin backend from the build settings
func newGPIODriver() (core.GPIODriver, error) {
	if UseExpander {
		return newExpanderDriver()
	}
	return NewRPGPIODriver(), nil
}

// halt parks the firmware after a fatal setup error. The LED blinks so the
// failure is visible without a host connection.
func halt() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

// usbReaderLoop moves bytes from USB into the input FIFO
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(time.Millisecond)
				continue
			}

			// Reconnected: start over with a clean link
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains the output buffer to USB. Repeated failures mark the link
// as disconnected and drop the stale data.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
