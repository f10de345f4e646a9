package protocol

import "sync/atomic"

// CommandHandler is a function type for handling decoded commands. The
// handler consumes its own arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the protocol: it validates incoming blocks,
// dispatches their commands in sequence order and answers every block with
// an ACK/NAK carrying the next expected sequence.
type Transport struct {
	scanner      scanner
	nextSequence atomic.Uint32 // expected sequence from host (0x10-0x1F)

	output        OutputBuffer
	handler       CommandHandler
	errorCallback func(cmdID uint16, err error)
	resetCallback func() // Called by Reset
	flushCallback func() // Called to push an ACK out immediately
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		scanner: scanner{synchronized: true},
		output:  output,
		handler: handler,
	}
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive processes incoming data and pops what it consumed from input
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	total := 0

	for {
		msg, consumed, ok, resynced := t.scanner.next(data[total:])
		total += consumed
		if resynced {
			t.encodeAckNak()
		}
		if !ok {
			break
		}

		// Only the expected sequence runs. A retransmitted block, whatever
		// its sequence, is answered but never dispatched twice.
		expected := uint8(t.nextSequence.Load())
		if msg.Sequence == expected {
			t.nextSequence.Store(uint32(nextSequence(msg.Sequence)))
			t.parseFrame(msg.Payload)
		}
		// A mismatched sequence still gets an ACK; it acts as a NAK with
		// the sequence the host should retransmit from.
		t.encodeAckNak()
	}

	if total > 0 {
		input.Pop(total)
	}
}

// parseFrame dispatches every command in a frame. A handler error stops the
// rest of the frame but does not desynchronize the stream.
func (t *Transport) parseFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.synchronized = false
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.synchronized = false
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			if t.errorCallback != nil {
				t.errorCallback(uint16(cmdID), err)
			}
			return
		}
	}
}

// encodeAckNak queues an empty block carrying the next expected sequence
func (t *Transport) encodeAckNak() {
	_ = EncodeMessage(t.output, uint8(t.nextSequence.Load()), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// Reset resets the transport state (USB disconnect/reconnect)
func (t *Transport) Reset() {
	t.scanner.synchronized = true
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// NextSequence returns the sequence the transport expects next
func (t *Transport) NextSequence() uint8 {
	return uint8(t.nextSequence.Load())
}

// SetResetCallback sets a callback to be called by Reset
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback to immediately flush ACK messages
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback sets a callback for command handler failures
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}
