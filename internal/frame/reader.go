package frame

import (
	"bufio"
	"io"
	"math"
)

// maxHeaderLength is 2 bytes of flags and length, 8 bytes of extended
// length and a 4 byte mask key.
const maxHeaderLength = 14

// Reader splits a byte stream into raw frames, each of which can be handed
// to Decode.
type Reader struct {
	r *bufio.Reader
	// MaxPayload caps the payload length of frames returned by Next (0 for no limit).
	MaxPayload int
}

// NewReader wraps r. Frames with payloads larger than maxPayload are
// skipped over and reported as ErrTooLarge.
func NewReader(r io.Reader, maxPayload int) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, MaxPayload: maxPayload}
}

// Next blocks until a complete frame has arrived and returns its raw bytes.
//
// Errors wrapping ErrInvalidFrame leave the stream usable; any other error
// comes from the underlying reader.
func (r *Reader) Next() ([]byte, error) {
	header, err := r.peekHeader()
	if err != nil {
		return nil, err
	}

	headerLen, length, err := parseHeader(header)
	if err == ErrInvalidLength {
		// There is no way to skip a payload we can't address; drop the header
		// and let whatever follows be parsed on its own.
		_, _ = r.r.Discard(headerLen)
		return nil, err
	} else if err != nil {
		return nil, err
	}

	if r.MaxPayload > 0 && length > uint64(r.MaxPayload) {
		if err := r.discard(uint64(headerLen) + length); err != nil {
			return nil, err
		}
		return nil, ErrTooLarge
	}

	raw := make([]byte, headerLen+int(length))
	if _, err := io.ReadFull(r.r, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// peekHeader returns at least the full header of the next frame without consuming it.
func (r *Reader) peekHeader() ([]byte, error) {
	b, err := r.r.Peek(2)
	if err != nil {
		return nil, err
	}

	need := 2
	switch b[1] & 0x7F {
	case extended16Bit:
		need += 2
	case extended64Bit:
		need += 8
	}
	if b[1]&0x80 != 0 {
		need += 4
	}
	if need > maxHeaderLength {
		need = maxHeaderLength
	}
	return r.r.Peek(need)
}

func (r *Reader) discard(n uint64) error {
	for n > 0 {
		chunk := n
		if chunk > math.MaxInt32 {
			chunk = math.MaxInt32
		}
		discarded, err := r.r.Discard(int(chunk))
		n -= uint64(discarded)
		if err != nil {
			return err
		}
	}
	return nil
}
