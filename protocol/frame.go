package protocol

import "errors"

// Message block layout: [len][seq][payload...][crc_hi][crc_lo][0x7E]
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
)

// ErrMessageTooLong is returned when a payload does not fit one block
var ErrMessageTooLong = errors.New("message exceeds maximum block length")

// Message is a decoded message block
type Message struct {
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
}

type frameStatus uint8

const (
	frameOK         frameStatus = iota
	frameIncomplete             // need more bytes
	frameInvalid                // drop sync and rescan
)

// checkFrame validates the block at the start of data. data must not begin
// with a sync byte. On frameOK it also returns the block length.
func checkFrame(data []byte) (int, frameStatus) {
	if len(data) < MessageLengthMin {
		return 0, frameIncomplete
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return 0, frameInvalid
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, frameInvalid
	}
	if len(data) < msgLen {
		return 0, frameIncomplete
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return 0, frameInvalid
	}

	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return 0, frameInvalid
	}
	return msgLen, frameOK
}

// scanner splits a byte stream into message blocks, resynchronizing on the
// next sync byte after a corrupt block.
type scanner struct {
	synchronized bool
}

// next returns the next complete block in data and the number of bytes
// consumed. ok is false when data holds no complete block; consumed may
// still be non-zero for skipped garbage. resynced is set when the scanner
// regained sync while consuming.
func (s *scanner) next(data []byte) (msg Message, consumed int, ok, resynced bool) {
	start := len(data)
	for len(data) > 0 {
		if !s.synchronized {
			i := 0
			for i < len(data) && data[i] != MessageValueSync {
				i++
			}
			if i == len(data) {
				return Message{}, start, false, resynced
			}
			data = data[i+1:]
			s.synchronized = true
			resynced = true
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msgLen, status := checkFrame(data)
		switch status {
		case frameIncomplete:
			return Message{}, start - len(data), false, resynced
		case frameInvalid:
			s.synchronized = false
			continue
		}

		msg = Message{
			Sequence: data[MessagePositionSeq],
			Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
		}
		data = data[msgLen:]
		return msg, start - len(data), true, resynced
	}
	return Message{}, start, false, resynced
}

// EncodeMessage writes one block with the given sequence and payload
func EncodeMessage(output OutputBuffer, seq uint8, payload []byte) error {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return ErrMessageTooLong
	}

	cursor := output.CurPosition()
	output.Output([]byte{uint8(msgLen), seq})
	output.Output(payload)

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	return nil
}

// nextSequence returns the sequence that follows seq
func nextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
