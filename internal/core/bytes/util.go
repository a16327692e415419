package bytes

import (
	"encoding/binary"
	"math"

	"golang.org/x/text/encoding/unicode"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ConvertToUtf16 converts a UTF-8 string to UTF-16 LE and return it as an array of bytes.
func ConvertToUtf16(str string) []byte {
	encoded, err := utf16LE.NewEncoder().Bytes([]byte(str))
	if err != nil {
		// The encoder replaces invalid sequences rather than failing.
		return []byte{}
	}
	return encoded
}

// ConvertFromUtf16 decodes UTF-16 LE bytes into a UTF-8 string. A trailing odd
// byte is ignored.
func ConvertFromUtf16(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	decoded, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// PutUint16LE appends v to b in little endian order.
func PutUint16LE(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

// Uint16LE reads a little endian uint16 from the start of b. ok is false if b
// is too short.
func Uint16LE(b []byte) (v uint16, ok bool) {
	if len(b) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

// PutFloat32BE appends v to b as a big endian IEEE 754 single.
func PutFloat32BE(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
}

// Float32BE reads a big endian IEEE 754 single from the start of b. ok is
// false if b is too short.
func Float32BE(b []byte) (v float32, ok bool) {
	if len(b) < 4 {
		return 0, false
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), true
}
