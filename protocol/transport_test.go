package protocol

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type dispatched struct {
	cmdID uint16
	args  []uint32
}

// recordingHandler decodes argCount VLQ arguments per command
func recordingHandler(calls *[]dispatched, argCount int) CommandHandler {
	return func(cmdID uint16, data *[]byte) error {
		d := dispatched{cmdID: cmdID}
		for i := 0; i < argCount; i++ {
			v, err := DecodeVLQUint(data)
			if err != nil {
				return err
			}
			d.args = append(d.args, v)
		}
		*calls = append(*calls, d)
		return nil
	}
}

func encodeCommand(t *testing.T, seq uint8, cmdID uint16, args ...uint32) []byte {
	t.Helper()
	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	for _, a := range args {
		EncodeVLQUint(payload, a)
	}
	msg := NewScratchOutput()
	if err := EncodeMessage(msg, seq, payload.Result()); err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	return append([]byte(nil), msg.Result()...)
}

func ackFor(seq uint8) []byte {
	out := NewScratchOutput()
	_ = EncodeMessage(out, seq, nil)
	return append([]byte(nil), out.Result()...)
}

func TestTransportDispatchAndAck(t *testing.T) {
	var calls []dispatched
	output := NewScratchOutput()
	tr := NewTransport(output, recordingHandler(&calls, 2))

	input := NewSliceInputBuffer(encodeCommand(t, MessageDest, CmdSetSoftPWM, 3, 200))
	tr.Receive(input)

	if input.Available() != 0 {
		t.Errorf("Expected whole message consumed, %d bytes left", input.Available())
	}
	if len(calls) != 1 {
		t.Fatalf("Expected 1 dispatched command, got %d", len(calls))
	}
	if calls[0].cmdID != CmdSetSoftPWM || calls[0].args[0] != 3 || calls[0].args[1] != 200 {
		t.Errorf("Unexpected dispatch: %+v", calls[0])
	}
	if tr.NextSequence() != MessageDest|1 {
		t.Errorf("Expected next sequence 0x11, got 0x%02x", tr.NextSequence())
	}

	want := ackFor(MessageDest | 1)
	if string(output.Result()) != string(want) {
		t.Errorf("Expected ACK %v, got %v", want, output.Result())
	}
}

func TestTransportMultipleCommandsInFrame(t *testing.T) {
	var calls []dispatched
	tr := NewTransport(NewScratchOutput(), recordingHandler(&calls, 1))

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(CmdStartSoftPWM))
	EncodeVLQUint(payload, 1)
	EncodeVLQUint(payload, uint32(CmdStopSoftPWM))
	EncodeVLQUint(payload, 2)
	msg := NewScratchOutput()
	if err := EncodeMessage(msg, MessageDest, payload.Result()); err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	tr.Receive(NewSliceInputBuffer(msg.Result()))

	if len(calls) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(calls))
	}
	if calls[0].cmdID != CmdStartSoftPWM || calls[1].cmdID != CmdStopSoftPWM {
		t.Errorf("Commands dispatched out of order: %+v", calls)
	}
}

func TestTransportResyncAfterGarbage(t *testing.T) {
	var calls []dispatched
	tr := NewTransport(NewScratchOutput(), recordingHandler(&calls, 2))

	data := []byte{0x03, 0x99, 0x42, MessageValueSync}
	data = append(data, encodeCommand(t, MessageDest, CmdSetSoftPWM, 1, 64)...)
	tr.Receive(NewSliceInputBuffer(data))

	if len(calls) != 1 {
		t.Fatalf("Expected command after resync, got %d calls", len(calls))
	}
}

func TestTransportCorruptCRC(t *testing.T) {
	var calls []dispatched
	tr := NewTransport(NewScratchOutput(), recordingHandler(&calls, 2))

	msg := encodeCommand(t, MessageDest, CmdSetSoftPWM, 1, 64)
	msg[len(msg)-2] ^= 0xFF
	tr.Receive(NewSliceInputBuffer(msg))

	if len(calls) != 0 {
		t.Errorf("Corrupt message must not be dispatched, got %d calls", len(calls))
	}
}

func TestTransportSequenceMismatch(t *testing.T) {
	var calls []dispatched
	output := NewScratchOutput()
	tr := NewTransport(output, recordingHandler(&calls, 1))

	tr.Receive(NewSliceInputBuffer(encodeCommand(t, MessageDest, CmdStartSoftPWM, 0)))
	output.Reset()

	// An out-of-order block is ignored and answered with a NAK
	tr.Receive(NewSliceInputBuffer(encodeCommand(t, MessageDest|5, CmdStartSoftPWM, 0)))

	if len(calls) != 1 {
		t.Errorf("Out-of-sequence message must not be dispatched, got %d calls", len(calls))
	}
	if string(output.Result()) != string(ackFor(MessageDest|1)) {
		t.Errorf("Expected NAK carrying 0x11, got %v", output.Result())
	}
}

func TestTransportPartialMessage(t *testing.T) {
	var calls []dispatched
	tr := NewTransport(NewScratchOutput(), recordingHandler(&calls, 2))

	msg := encodeCommand(t, MessageDest, CmdSetSoftPWM, 2, 128)
	fifo := NewFifoBuffer(128)
	fifo.Write(msg[:4])
	tr.Receive(fifo)

	if len(calls) != 0 || fifo.Available() != 4 {
		t.Fatalf("Partial message must wait for more bytes (calls=%d, buffered=%d)", len(calls), fifo.Available())
	}

	fifo.Write(msg[4:])
	tr.Receive(fifo)
	if len(calls) != 1 {
		t.Errorf("Expected dispatch once complete, got %d calls", len(calls))
	}
	if fifo.Available() != 0 {
		t.Errorf("Expected buffer drained, %d bytes left", fifo.Available())
	}
}

func TestTransportRetransmitNotDispatchedTwice(t *testing.T) {
	var calls []dispatched
	output := NewScratchOutput()
	tr := NewTransport(output, recordingHandler(&calls, 1))
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	// The same 0x10 block twice, as after a lost ACK
	block := encodeCommand(t, MessageDest, CmdStartSoftPWM, 0)
	tr.Receive(NewSliceInputBuffer(block))
	output.Reset()
	tr.Receive(NewSliceInputBuffer(block))

	if len(calls) != 1 {
		t.Errorf("Retransmitted block dispatched again, got %d calls", len(calls))
	}
	if resets != 0 {
		t.Errorf("Retransmission must not reset the MCU, got %d resets", resets)
	}
	if string(output.Result()) != string(ackFor(MessageDest|1)) {
		t.Errorf("Expected NAK carrying 0x11, got %v", output.Result())
	}
}

func TestTransportReset(t *testing.T) {
	tr := NewTransport(NewScratchOutput(), recordingHandler(new([]dispatched), 1))
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(encodeCommand(t, MessageDest, CmdStartSoftPWM, 0)))
	tr.Reset()

	if resets != 1 {
		t.Errorf("Expected 1 reset, got %d", resets)
	}
	if tr.NextSequence() != MessageDest {
		t.Errorf("Expected sequence 0x10 after reset, got 0x%02x", tr.NextSequence())
	}
}

func TestTransportHandlerError(t *testing.T) {
	var failed uint16
	tr := NewTransport(NewScratchOutput(), func(cmdID uint16, data *[]byte) error {
		return errors.New("boom")
	})
	tr.SetErrorCallback(func(cmdID uint16, err error) { failed = cmdID })

	tr.Receive(NewSliceInputBuffer(encodeCommand(t, MessageDest, CmdStopAllSoftPWM)))

	if failed != CmdStopAllSoftPWM {
		t.Errorf("Expected error callback for command %d, got %d", CmdStopAllSoftPWM, failed)
	}
	if tr.NextSequence() != MessageDest|1 {
		t.Errorf("Handler errors must not stall the sequence, got 0x%02x", tr.NextSequence())
	}
}

func TestEncodeMessageTooLong(t *testing.T) {
	err := EncodeMessage(NewScratchOutput(), MessageDest, make([]byte, MessageLengthMax))
	if err != ErrMessageTooLong {
		t.Errorf("Expected ErrMessageTooLong, got %v", err)
	}
}

// fakeMCU serves a fresh Transport over one end of a pipe
func fakeMCU(t *testing.T, conn net.Conn, handler CommandHandler) *sync.WaitGroup {
	t.Helper()
	output := NewScratchOutput()
	return serveMCU(t, conn, NewTransport(output, handler), output, nil)
}

// serveMCU feeds tr from conn and writes its replies back. dropReply, if
// set, is asked for every block (numbered from 0) whether to lose the reply.
func serveMCU(t *testing.T, conn net.Conn, tr *Transport, output *ScratchOutput, dropReply func(block int) bool) *sync.WaitGroup {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		input := NewFifoBuffer(256)
		buf := make([]byte, 64)
		for block := 0; ; block++ {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			input.Write(buf[:n])
			tr.Receive(input)
			if dropReply != nil && dropReply(block) {
				output.Reset()
				continue
			}
			if len(output.Result()) > 0 {
				if _, err := conn.Write(output.Result()); err != nil {
					return
				}
				output.Reset()
			}
		}
	}()
	return &wg
}

// setValue encodes set_soft_pwm oid=1 value=v
func setValue(v uint32) func(OutputBuffer) {
	return func(out OutputBuffer) {
		EncodeVLQUint(out, 1)
		EncodeVLQUint(out, v)
	}
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostConn, mcuConn := net.Pipe()

	var mu sync.Mutex
	var calls []dispatched
	record := recordingHandler(&calls, 2)
	wg := fakeMCU(t, mcuConn, func(cmdID uint16, data *[]byte) error {
		mu.Lock()
		defer mu.Unlock()
		return record(cmdID, data)
	})

	host := NewHostTransport(hostConn)

	// Enough commands to wrap the 4-bit sequence
	for i := 0; i < 20; i++ {
		err := host.SendCommandWithTimeout(CmdSetSoftPWM, func(out OutputBuffer) {
			EncodeVLQUint(out, 1)
			EncodeVLQUint(out, uint32(i))
		}, time.Second)
		if err != nil {
			t.Fatalf("SendCommand %d failed: %v", i, err)
		}
	}

	if host.Sequence() != MessageDest|(20&MessageSeqMask) {
		t.Errorf("Expected host sequence 0x%02x, got 0x%02x", MessageDest|(20&MessageSeqMask), host.Sequence())
	}

	if err := host.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	mcuConn.Close()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 20 {
		t.Fatalf("Expected 20 commands at the MCU, got %d", len(calls))
	}
	for i, c := range calls {
		if c.args[1] != uint32(i) {
			t.Errorf("Command %d carried value %d", i, c.args[1])
		}
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostConn, mcuConn := net.Pipe()
	defer mcuConn.Close()

	// Swallow everything, never ACK
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := mcuConn.Read(buf); err != nil {
				return
			}
		}
	}()

	host := NewHostTransport(hostConn)
	defer host.Close()

	err := host.SendCommandWithTimeout(CmdStopAllSoftPWM, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("Expected ACK timeout")
	}
	if host.Sequence() != MessageDest {
		t.Errorf("Sequence must not advance without ACK, got 0x%02x", host.Sequence())
	}
}

func TestHostTransportLostAck(t *testing.T) {
	for _, lost := range []int{0, 1} {
		hostConn, mcuConn := net.Pipe()

		var calls []dispatched
		output := NewScratchOutput()
		tr := NewTransport(output, recordingHandler(&calls, 2))
		resets := 0
		tr.SetResetCallback(func() { resets++ })
		wg := serveMCU(t, mcuConn, tr, output, func(block int) bool { return block == lost })

		host := NewHostTransport(hostConn)
		values := []uint32{10, 20, 30, 40}
		for i, v := range values {
			err := host.SendCommandWithTimeout(CmdSetSoftPWM, setValue(v), 100*time.Millisecond)
			if i == lost {
				if err == nil {
					t.Errorf("lost=%d: expected ACK timeout for value %d", lost, v)
				}
				continue
			}
			if err != nil {
				t.Errorf("lost=%d: value %d failed: %v", lost, v, err)
			}
		}

		host.Close()
		mcuConn.Close()
		wg.Wait()

		// The block whose ACK was lost still ran; nothing ran twice and
		// nothing reported as sent was skipped.
		if len(calls) != len(values) {
			t.Fatalf("lost=%d: expected %d commands at the MCU, got %d: %+v", lost, len(values), len(calls), calls)
		}
		for i, c := range calls {
			if c.args[1] != values[i] {
				t.Errorf("lost=%d: command %d carried value %d, want %d", lost, i, c.args[1], values[i])
			}
		}
		if resets != 0 {
			t.Errorf("lost=%d: MCU was reset %d times", lost, resets)
		}
		if tr.NextSequence() != MessageDest|4 {
			t.Errorf("lost=%d: MCU expects 0x%02x, want 0x14", lost, tr.NextSequence())
		}
	}
}

func TestHostTransportJoinsRunningMCU(t *testing.T) {
	hostConn, mcuConn := net.Pipe()

	var calls []dispatched
	output := NewScratchOutput()
	tr := NewTransport(output, recordingHandler(&calls, 2))

	// A previous host session left the MCU expecting 0x13
	for seq := uint8(0); seq < 3; seq++ {
		tr.Receive(NewSliceInputBuffer(encodeCommand(t, MessageDest|seq, CmdSetSoftPWM, 1, uint32(seq))))
	}
	output.Reset()
	wg := serveMCU(t, mcuConn, tr, output, nil)

	host := NewHostTransport(hostConn)
	if err := host.SendCommandWithTimeout(CmdSetSoftPWM, setValue(99), time.Second); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if host.Sequence() != MessageDest|4 {
		t.Errorf("Expected host sequence 0x14, got 0x%02x", host.Sequence())
	}

	host.Close()
	mcuConn.Close()
	wg.Wait()

	if len(calls) != 4 || calls[3].args[1] != 99 {
		t.Errorf("Expected the new command to run once, got %+v", calls)
	}
}
