package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// EncodeVLQUint writes v as a Klipper VLQ, most significant group first.
// Every argument in the command set is unsigned; v goes on the wire as the
// int32 with the same bits, so values from 96 up take a second byte.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	sv := int32(v)
	var buf [5]byte
	n := 0
	for shift := 28; shift > 0; shift -= 7 {
		if !fitsVLQ(sv, shift) {
			buf[n] = byte(sv>>shift)&0x7F | 0x80
			n++
		}
	}
	buf[n] = byte(sv & 0x7F)
	output.Output(buf[:n+1])
}

// fitsVLQ reports whether v is encodable in the 7-bit groups below shift
func fitsVLQ(v int32, shift int) bool {
	limit := int32(1) << (shift - 2)
	return -limit <= v && v < 3*limit
}

// DecodeVLQUint reads one VLQ value and advances data past it
func DecodeVLQUint(data *[]byte) (uint32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := buf[0]
	v := uint32(c & 0x7F)
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}

	i := 1
	for ; c&0x80 != 0; i++ {
		if i > 4 {
			return 0, ErrInvalidVLQ
		}
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		c = buf[i]
		v = v<<7 | uint32(c&0x7F)
	}

	*data = buf[i:]
	return v, nil
}
