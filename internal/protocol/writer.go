package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
)

// Writer provides methods for writing packet data.
// Uses Little-Endian byte order for all multi-byte values.
type Writer struct {
	buf *bytes.Buffer
}

// writerPool reduces allocations by reusing Writers.
// GetWriter() returns a Writer with Reset() called, Put() returns it to pool.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf: bytes.NewBuffer(make([]byte, 0, 512)),
		}
	},
}

// GetWriter returns a Writer from the pool (already Reset).
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// Put returns a Writer to the pool for reuse.
// IMPORTANT: Do not use the Writer or its Bytes() after calling Put.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// NewWriter creates a new packet writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: bytes.NewBuffer(make([]byte, 0, capacity)),
	}
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(b uint8) {
	w.buf.WriteByte(b)
}

// WriteUint16 writes a uint16 (2 bytes, LE).
// Optimized: manual encoding instead of binary.Write.
func (w *Writer) WriteUint16(val uint16) {
	w.buf.WriteByte(byte(val))
	w.buf.WriteByte(byte(val >> 8))
}

// WriteUint32 writes a uint32 (4 bytes, LE).
// Optimized: manual encoding instead of binary.Write.
func (w *Writer) WriteUint32(val uint32) {
	w.buf.WriteByte(byte(val))
	w.buf.WriteByte(byte(val >> 8))
	w.buf.WriteByte(byte(val >> 16))
	w.buf.WriteByte(byte(val >> 24))
}

// WriteUint64 writes a uint64 (8 bytes, LE).
// Optimized: manual encoding instead of binary.Write.
func (w *Writer) WriteUint64(val uint64) {
	w.buf.WriteByte(byte(val))
	w.buf.WriteByte(byte(val >> 8))
	w.buf.WriteByte(byte(val >> 16))
	w.buf.WriteByte(byte(val >> 24))
	w.buf.WriteByte(byte(val >> 32))
	w.buf.WriteByte(byte(val >> 40))
	w.buf.WriteByte(byte(val >> 48))
	w.buf.WriteByte(byte(val >> 56))
}

// WriteInt64 writes an int64 (8 bytes, LE).
func (w *Writer) WriteInt64(val int64) {
	w.WriteUint64(uint64(val))
}

// WriteFloat32 writes a float32 (4 bytes, LE, IEEE 754).
func (w *Writer) WriteFloat32(val float32) {
	w.WriteUint32(math.Float32bits(val))
}

// WriteFloat64 writes a float64 (8 bytes, LE, IEEE 754).
// Uses binary.LittleEndian.PutUint64 for correct IEEE 754 encoding.
func (w *Writer) WriteFloat64(val float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(val))
	w.buf.Write(tmp[:])
}

// WriteCString writes s into a fixed-size NUL-padded field of size bytes.
// Strings longer than size-1 are truncated so the field always ends with NUL.
func (w *Writer) WriteCString(s string, size int) {
	if len(s) > size-1 {
		s = s[:size-1]
	}
	w.buf.WriteString(s)
	for i := len(s); i < size; i++ {
		w.buf.WriteByte(0)
	}
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	_, _ = w.buf.Write(data)
}

// Bytes returns the accumulated packet data.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the current length of the packet.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset clears the buffer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
}
