package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	// ErrTransportClosed is returned once Close has been called
	ErrTransportClosed = errors.New("transport closed")

	// ErrSequence is returned when the MCU keeps rejecting a block's sequence
	ErrSequence = errors.New("sequence rejected by MCU")

	errAckTimeout = errors.New("ACK timeout")
)

// maxRetransmits bounds how often one block is resent after NAKs
const maxRetransmits = 3

// HostTransport is the host side of the protocol: it sends one command per
// block and waits for the MCU's ACK before the next one.
type HostTransport struct {
	port io.ReadWriteCloser

	writeMu  sync.Mutex
	seq      uint8 // sequence of the next block (0x10-0x1F)
	desynced bool  // an ACK was missed; seq may lag the MCU

	ackChan  chan uint8
	stopChan chan struct{}
	doneChan chan struct{}
	closeErr error
	once     sync.Once
}

// NewHostTransport starts a transport reading ACKs from port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:     port,
		seq:      MessageDest,
		ackChan:  make(chan uint8, 4),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends a command and waits up to two seconds for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends a command with a custom ACK timeout.
//
// A NAK means the MCU did not run the block, so it is resent under the
// sequence the MCU asked for. After a timeout the host cannot tell whether
// the block ran; the next send first resynchronizes the sequence.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}

	deadline := time.After(timeout)
	if t.desynced {
		if err := t.resync(deadline); err != nil {
			return fmt.Errorf("command %d: resync: %w", cmdID, t.timeoutError(err, timeout))
		}
	}

	// Drop stale ACKs left over from a previous timeout
	t.drainAcks()

	for attempt := 0; ; attempt++ {
		if err := t.writeBlock(t.seq, payload.Result()); err != nil {
			return fmt.Errorf("failed to write command %d: %w", cmdID, err)
		}

		ack, err := t.waitAck(deadline)
		if err != nil {
			if errors.Is(err, errAckTimeout) {
				t.desynced = true
			}
			return fmt.Errorf("command %d: %w", cmdID, t.timeoutError(err, timeout))
		}
		if ack == nextSequence(t.seq) {
			t.seq = ack
			return nil
		}

		// NAK
		if attempt >= maxRetransmits {
			t.desynced = true
			return fmt.Errorf("command %d: %w: MCU expects 0x%02x", cmdID, ErrSequence, ack)
		}
		t.seq = ack
	}
}

// resync learns the sequence the MCU expects. An empty block runs nothing,
// and the MCU answers it with its next expected sequence either way.
func (t *HostTransport) resync(deadline <-chan time.Time) error {
	t.drainAcks()
	if err := t.writeBlock(t.seq, nil); err != nil {
		return err
	}
	ack, err := t.waitAck(deadline)
	if err != nil {
		return err
	}
	t.seq = ack
	t.desynced = false
	return nil
}

func (t *HostTransport) writeBlock(seq uint8, payload []byte) error {
	msg := NewScratchOutput()
	if err := EncodeMessage(msg, seq, payload); err != nil {
		return err
	}
	n, err := t.port.Write(msg.Result())
	if err != nil {
		return err
	}
	if n != len(msg.Result()) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg.Result()))
	}
	return nil
}

func (t *HostTransport) waitAck(deadline <-chan time.Time) (uint8, error) {
	select {
	case ack := <-t.ackChan:
		return ack, nil
	case <-deadline:
		return 0, errAckTimeout
	case <-t.stopChan:
		return 0, ErrTransportClosed
	}
}

func (t *HostTransport) drainAcks() {
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
}

func (t *HostTransport) timeoutError(err error, timeout time.Duration) error {
	if errors.Is(err, errAckTimeout) {
		return fmt.Errorf("%w after %v", err, timeout)
	}
	return err
}

// Sequence returns the sequence the next block will carry
func (t *HostTransport) Sequence() uint8 {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.seq
}

// readLoop reads the port and forwards ACK sequences
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	input := NewFifoBuffer(512)
	sc := scanner{synchronized: true}
	buffer := make([]byte, 128)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		input.Write(buffer[:n])

		data := input.Data()
		total := 0
		for {
			msg, consumed, ok, _ := sc.next(data[total:])
			total += consumed
			if !ok {
				break
			}
			if len(msg.Payload) == 0 {
				select {
				case t.ackChan <- msg.Sequence:
				default:
				}
			}
		}
		input.Pop(total)
	}
}

// Close stops the read loop and closes the port
func (t *HostTransport) Close() error {
	t.once.Do(func() {
		close(t.stopChan)
		t.closeErr = t.port.Close()
		<-t.doneChan
	})
	return t.closeErr
}
