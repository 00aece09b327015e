// Package motorcmd defines the motor command wire format shared by the
// motor emitter and the radio decoder: a (index, value) pair encoded
// across three tagged bytes so the downstream microcontroller can
// resynchronise on a torn stream.
//
//	byte 0:  bits[1:0] = 00   bits[7:2] = index (6 bits)
//	byte 1:  bits[1:0] = 01   bits[7:2] = value[5:0]
//	byte 2:  bits[1:0] = 10   bits[7:2] = value[11:6]
package motorcmd

// Indices of the two motors.
const (
	Steering = 0
	Throttle = 1
)

// Neutral pulse-widths, indexed by motor index.
var Neutral = [2]uint16{
	Steering: 1500,
	Throttle: 1552,
}

// Command is a single motor instruction: drive motor Index to Value, a
// 12-bit pulse-width in [0, 4095].
type Command struct {
	Index uint8
	Value uint16
}

// NeutralThrottle is the single command the arbiter falls back to whenever
// the RC link is declared lost.
func NeutralThrottle() Command {
	return Command{Index: Throttle, Value: Neutral[Throttle]}
}

// Encode produces the 3-byte tagged frame for a command.
func Encode(c Command) [3]byte {
	return [3]byte{
		0b00 | (c.Index << 2),
		byte(0b01 | (c.Value << 2)),
		byte(0b10 | ((c.Value >> 4) & 0xfc)),
	}
}

// Decoder reconstructs Commands from a byte stream using the tag scheme
// above. It is the inverse of Encode and is shared by anything that needs
// to read frames laid out like this (the radio decoder is its only
// consumer today, but the scheme is symmetric between encoder and
// decoder by construction, which is what property P2 checks).
type Decoder struct {
	expected uint8
	prev     [2]byte
}

// DecodedFrame is the result of successfully decoding three tagged bytes.
type DecodedFrame struct {
	Index uint8
	Value uint16
}

// Feed processes a single incoming byte. It returns a DecodedFrame and ok
// = true once a full 3-byte frame has been collected; otherwise ok is
// false and the decoder has updated its internal resync state.
func (d *Decoder) Feed(b byte) (frame DecodedFrame, ok bool) {
	if b&0b11 != d.expected {
		d.expected = 0
		return DecodedFrame{}, false
	}
	if d.expected < 2 {
		d.prev[d.expected] = b
		d.expected++
		return DecodedFrame{}, false
	}
	d.expected = 0
	index := d.prev[0] >> 2
	value := uint16(d.prev[1]>>2) | (uint16(b&0xfc) << 4)
	return DecodedFrame{Index: index, Value: value}, true
}
