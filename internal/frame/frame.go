// Package frame encodes and decodes individual frames of the masked,
// length-prefixed message protocol spoken over upgraded socket connections.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-------+-+-------------+-------------------------------+
//	|F|R|R|R| opcode|M| Payload len |    Extended payload length    |
//	|I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
//	|N|V|V|V|       |S|             |   (if payload len==126/127)   |
//	+-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
//	|     Extended payload length continued, if payload len == 127  |
//	+ - - - - - - - - - - - - - - - +-------------------------------+
//	|                               |Masking-key, if MASK set to 1  |
//	+-------------------------------+-------------------------------+
//	| Masking-key (continued)       |          Payload Data         |
//	+-------------------------------- - - - - - - - - - - - - - - - +
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Opcode identifies the type of a frame.
type Opcode byte

const (
	Continuation Opcode = 0x0
	Text         Opcode = 0x1
	Binary       Opcode = 0x2
	// 0x3-0x7 reserved (non-control)
	Close Opcode = 0x8
	Ping  Opcode = 0x9
	Pong  Opcode = 0xA
	// 0xB-0xF reserved (control)
)

func (o Opcode) String() string {
	switch o {
	case Continuation:
		return "CONTINUATION"
	case Text:
		return "TEXT"
	case Binary:
		return "BINARY"
	case Close:
		return "CLOSE"
	case Ping:
		return "PING"
	case Pong:
		return "PONG"
	default:
		return fmt.Sprintf("RESERVED(0x%X)", byte(o))
	}
}

// Payload length thresholds.
const (
	maxShortLength  = 125
	extended16Bit   = 126
	extended64Bit   = 127
	maxMediumLength = math.MaxUint16
)

var (
	// ErrInvalidFrame is the root of every decoding failure.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrTruncated means the buffer ended before the frame did.
	ErrTruncated = fmt.Errorf("%w: truncated", ErrInvalidFrame)
	// ErrInvalidLength means the declared payload length cannot be represented as an int.
	ErrInvalidLength = fmt.Errorf("%w: payload length out of range", ErrInvalidFrame)
	// ErrTooLarge means the payload exceeds the reader's configured limit.
	ErrTooLarge = fmt.Errorf("%w: payload too large", ErrInvalidFrame)
)

// Frame is one protocol message unit.
type Frame struct {
	// Final marks the end of a logical message.
	Final bool
	// Rsv holds the three reserved bits. They have no meaning here but are
	// preserved across decode/encode.
	Rsv     [3]bool
	Opcode  Opcode
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	// Payload is always unmasked.
	Payload []byte
}

// Text returns the payload of a TEXT frame as a string.
func (f *Frame) Text() string {
	return string(f.Payload)
}

// Encode returns the bytes of a final, unmasked frame carrying payload. This is
// the form every server to client frame takes.
func Encode(opcode Opcode, payload []byte) []byte {
	f := &Frame{Final: true, Opcode: opcode, Payload: payload}
	return f.Bytes()
}

// Bytes serializes the frame. If Masked is set, the payload is written XOR'd
// with MaskKey. Length is derived from the payload.
func (f *Frame) Bytes() []byte {
	length := len(f.Payload)

	size := 2 + length
	if length > maxShortLength {
		size += 2
	}
	if length > maxMediumLength {
		size += 6
	}
	if f.Masked {
		size += 4
	}

	buf := make([]byte, 2, size)
	buf[0] = byte(f.Opcode & 0x0F)
	if f.Final {
		buf[0] |= 0x80
	}
	for i, bit := range f.Rsv {
		if bit {
			buf[0] |= 0x40 >> i
		}
	}
	if f.Masked {
		buf[1] = 0x80
	}

	switch {
	case length <= maxShortLength:
		buf[1] |= byte(length)
	case length <= maxMediumLength:
		buf[1] |= extended16Bit
		buf = binary.BigEndian.AppendUint16(buf, uint16(length))
	default:
		buf[1] |= extended64Bit
		buf = binary.BigEndian.AppendUint64(buf, uint64(length))
	}

	if !f.Masked {
		return append(buf, f.Payload...)
	}

	buf = append(buf, f.MaskKey[:]...)
	offset := len(buf)
	buf = append(buf, f.Payload...)
	applyMask(buf[offset:], f.MaskKey)
	return buf
}

// Decode parses exactly one frame from the start of b, unmasking the payload
// if the mask bit is set. Decode does not care whether a frame should have
// been masked; that's a policy decision for the caller.
func Decode(b []byte) (*Frame, error) {
	headerLen, length, err := parseHeader(b)
	if err != nil {
		return nil, err
	}
	if uint64(len(b)-headerLen) < length {
		return nil, ErrTruncated
	}

	f := &Frame{
		Final:  b[0]&0x80 != 0,
		Rsv:    [3]bool{b[0]&0x40 != 0, b[0]&0x20 != 0, b[0]&0x10 != 0},
		Opcode: Opcode(b[0] & 0x0F),
		Masked: b[1]&0x80 != 0,
		Length: length,
	}
	if f.Masked {
		copy(f.MaskKey[:], b[headerLen-4:headerLen])
	}

	f.Payload = make([]byte, length)
	copy(f.Payload, b[headerLen:headerLen+int(length)])
	if f.Masked {
		applyMask(f.Payload, f.MaskKey)
	}
	return f, nil
}

// parseHeader returns the length of the frame header (including any extended
// length and mask key) and the declared payload length.
func parseHeader(b []byte) (headerLen int, length uint64, err error) {
	if len(b) < 2 {
		return 0, 0, ErrTruncated
	}

	headerLen = 2
	length = uint64(b[1] & 0x7F)

	switch length {
	case extended16Bit:
		if len(b) < headerLen+2 {
			return 0, 0, ErrTruncated
		}
		length = uint64(binary.BigEndian.Uint16(b[headerLen:]))
		headerLen += 2
	case extended64Bit:
		if len(b) < headerLen+8 {
			return 0, 0, ErrTruncated
		}
		length = binary.BigEndian.Uint64(b[headerLen:])
		headerLen += 8
	}

	if b[1]&0x80 != 0 {
		headerLen += 4
		if len(b) < headerLen {
			return 0, 0, ErrTruncated
		}
	}

	if length > uint64(math.MaxInt)-uint64(headerLen) {
		return headerLen, length, ErrInvalidLength
	}
	return headerLen, length, nil
}

// applyMask XORs b in place with the 4 byte key; applying it twice restores the input.
func applyMask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}
