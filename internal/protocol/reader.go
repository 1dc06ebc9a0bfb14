package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader provides methods for reading packet payload data.
// Uses Little-Endian byte order for all multi-byte values.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a new payload reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("Uint8: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// Uint16 reads a uint16 (2 bytes, LE).
func (r *Reader) Uint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("Uint16: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return val, nil
}

// Uint32 reads a uint32 (4 bytes, LE).
func (r *Reader) Uint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("Uint32: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return val, nil
}

// Uint64 reads a uint64 (8 bytes, LE).
func (r *Reader) Uint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("Uint64: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return val, nil
}

// Int64 reads an int64 (8 bytes, LE).
func (r *Reader) Int64() (int64, error) {
	val, err := r.Uint64()
	return int64(val), err
}

// Float32 reads a float32 (4 bytes, LE, IEEE 754).
func (r *Reader) Float32() (float32, error) {
	bits, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// Float64 reads a float64 (8 bytes, LE, IEEE 754).
func (r *Reader) Float64() (float64, error) {
	bits, err := r.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// CString reads a fixed-size NUL-padded string field of size bytes.
// The returned string stops at the first NUL byte.
func (r *Reader) CString(size int) (string, error) {
	if r.pos+size > len(r.data) {
		return "", fmt.Errorf("CString: not enough data (pos=%d, need=%d, len=%d)", r.pos, size, len(r.data))
	}
	field := r.data[r.pos : r.pos+size]
	r.pos += size
	for i, b := range field {
		if b == 0 {
			return string(field[:i]), nil
		}
	}
	return string(field), nil
}

// Bytes reads n raw bytes (zero-copy, subslice of the underlying data).
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("Bytes: negative count %d", n)
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("Bytes: not enough data (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}
