// Package stellarium implements the Stellarium telescope-control TCP
// protocol (§6): a little-endian binary stream carrying type-0
// goto/position messages and type-2 sync messages.
package stellarium

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// raDecScale converts a [0, 2π) radian angle to the protocol's
	// unsigned 32-bit integer encoding: rad * (2^32 / (2*pi)) = rad *
	// (2^31/pi), per §6.
	raDecScale = float64(1<<31) / math.Pi

	type0Size = 24
	type2Size = 16
)

// Message is a decoded type-0 Stellarium frame: a timestamped RA/DEC
// position, inbound (goto request) or outbound (current position).
type Message struct {
	TimestampMicros uint64
	RA              float64 // radians, [0, 2*pi)
	Dec             float64 // radians, [-pi/2, pi/2]
}

// EncodeType0 packs a Message into the 24-byte type-0 wire format:
// {u16 size, u16 type, u64 time, u32 ra, i32 dec, u32 reserved}.
func EncodeType0(m Message) []byte {
	buf := make([]byte, type0Size)
	binary.LittleEndian.PutUint16(buf[0:2], type0Size)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint64(buf[4:12], m.TimestampMicros)
	binary.LittleEndian.PutUint32(buf[12:16], radToUint32(m.RA))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(int32(radToInt32(m.Dec))))
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	return buf
}

// DecodeType0 unpacks a type-0 message. It accepts buffers of at least
// 20 bytes (the reserved trailing u32 is optional on some senders, per
// spec scenario 6's 20-byte example).
func DecodeType0(buf []byte) (Message, error) {
	if len(buf) < 20 {
		return Message{}, fmt.Errorf("stellarium: type-0 message too short: %d bytes", len(buf))
	}
	size := binary.LittleEndian.Uint16(buf[0:2])
	typ := binary.LittleEndian.Uint16(buf[2:4])
	if typ != 0 {
		return Message{}, fmt.Errorf("stellarium: expected type 0, got %d", typ)
	}
	if int(size) > len(buf) {
		return Message{}, fmt.Errorf("stellarium: declared size %d exceeds buffer length %d", size, len(buf))
	}
	ts := binary.LittleEndian.Uint64(buf[4:12])
	raInt := binary.LittleEndian.Uint32(buf[12:16])
	decInt := int32(binary.LittleEndian.Uint32(buf[16:20]))
	return Message{
		TimestampMicros: ts,
		RA:              uint32ToRad(raInt),
		Dec:             int32ToRad(decInt),
	}, nil
}

// EncodeType2Sync packs a 16-byte type-2 sync message (no reserved
// field).
func EncodeType2Sync(m Message) []byte {
	buf := make([]byte, type2Size)
	binary.LittleEndian.PutUint16(buf[0:2], type2Size)
	binary.LittleEndian.PutUint16(buf[2:4], 2)
	binary.LittleEndian.PutUint64(buf[4:12], m.TimestampMicros)
	binary.LittleEndian.PutUint32(buf[12:16], radToUint32(m.RA))
	return buf
}

func radToUint32(rad float64) uint32 {
	for rad < 0 {
		rad += 2 * math.Pi
	}
	for rad >= 2*math.Pi {
		rad -= 2 * math.Pi
	}
	return uint32(rad * raDecScale)
}

func uint32ToRad(v uint32) float64 {
	return float64(v) / raDecScale
}

func radToInt32(rad float64) int64 {
	return int64(rad * raDecScale)
}

func int32ToRad(v int32) float64 {
	return float64(v) / raDecScale
}

// DegreesRA converts a decoded RA in radians to degrees, [0, 360).
func (m Message) DegreesRA() float64 {
	return m.RA * 180 / math.Pi
}

// DegreesDec converts a decoded DEC in radians to degrees, [-90, 90].
func (m Message) DegreesDec() float64 {
	return m.Dec * 180 / math.Pi
}
