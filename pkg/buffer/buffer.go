// Package buffer provides a random-access byte buffer with a position
// cursor, used by the PackStream codec and the chunk framer.
package buffer

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
)

// ErrOutOfRange is returned when a read or put would run past the end
// of the buffer's backing storage.
var ErrOutOfRange = errors.New("buffer: read/write out of range")

// Buffer is a mutable byte sequence with a cursor. All multi-byte
// integers and floats are encoded big-endian. A Buffer is owned
// exclusively by its holder and must never be shared across
// concurrent writers.
type Buffer struct {
	data   []byte
	cursor int
}

// New creates an empty Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Wrap creates a Buffer whose backing storage is b. The cursor starts
// at 0; ownership of b transfers to the Buffer.
func Wrap(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the full backing slice (size, not remaining).
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Size returns the total number of bytes held by the buffer.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Cursor returns the current read/write position.
func (b *Buffer) Cursor() int {
	return b.cursor
}

// Remaining returns size - cursor.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.cursor
}

// HasRemaining reports whether any unread bytes remain.
func (b *Buffer) HasRemaining() bool {
	return b.Remaining() > 0
}

// Reset sets the cursor back to 0 without discarding the data.
func (b *Buffer) Reset() {
	b.cursor = 0
}

// Clear empties the buffer and resets the cursor.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
	b.cursor = 0
}

// Seek moves the cursor to an absolute offset.
func (b *Buffer) Seek(offset int) error {
	if offset < 0 || offset > len(b.data) {
		return ErrOutOfRange
	}
	b.cursor = offset
	return nil
}

func (b *Buffer) ensure(extra int) {
	need := len(b.data) + extra
	if need <= cap(b.data) {
		return
	}
	grown := make([]byte, len(b.data), need*2+16)
	copy(grown, b.data)
	b.data = grown
}

// WriteByte appends a single byte at the cursor, advancing it.
func (b *Buffer) WriteByte(v byte) error {
	b.ensure(1)
	b.data = append(b.data, v)
	b.cursor++
	return nil
}

// WriteBytes appends raw bytes, advancing the cursor.
func (b *Buffer) WriteBytes(v []byte) {
	b.ensure(len(v))
	b.data = append(b.data, v...)
	b.cursor += len(v)
}

// WriteU16 appends a big-endian uint16.
func (b *Buffer) WriteU16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.WriteBytes(tmp[:])
}

// WriteI32 appends a big-endian int32.
func (b *Buffer) WriteI32(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.WriteBytes(tmp[:])
}

// WriteI64 appends a big-endian int64.
func (b *Buffer) WriteI64(v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	b.WriteBytes(tmp[:])
}

// WriteF64 appends a big-endian IEEE-754 float64.
func (b *Buffer) WriteF64(v float64) {
	b.WriteI64(int64(math.Float64bits(v)))
}

// ReadByte reads a single byte, advancing the cursor.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrOutOfRange
	}
	v := b.data[b.cursor]
	b.cursor++
	return v, nil
}

// PeekByte reads a single byte without advancing the cursor.
func (b *Buffer) PeekByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrOutOfRange
	}
	return b.data[b.cursor], nil
}

// ReadSlice returns the next n bytes and advances the cursor. The
// returned slice aliases the buffer's backing array.
func (b *Buffer) ReadSlice(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, ErrOutOfRange
	}
	s := b.data[b.cursor : b.cursor+n]
	b.cursor += n
	return s, nil
}

// ReadU16 reads a big-endian uint16.
func (b *Buffer) ReadU16() (uint16, error) {
	s, err := b.ReadSlice(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(s), nil
}

// ReadI8 reads a signed byte.
func (b *Buffer) ReadI8() (int8, error) {
	v, err := b.ReadByte()
	if err != nil {
		return 0, err
	}
	return int8(v), nil
}

// ReadI16 reads a big-endian int16.
func (b *Buffer) ReadI16() (int16, error) {
	v, err := b.ReadU16()
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// ReadI32 reads a big-endian int32.
func (b *Buffer) ReadI32() (int32, error) {
	s, err := b.ReadSlice(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(s)), nil
}

// ReadI64 reads a big-endian int64.
func (b *Buffer) ReadI64() (int64, error) {
	s, err := b.ReadSlice(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(s)), nil
}

// ReadF64 reads a big-endian IEEE-754 float64.
func (b *Buffer) ReadF64() (float64, error) {
	v, err := b.ReadI64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

// ToHex renders the full backing array as a hex string, for debugging.
func (b *Buffer) ToHex() string {
	return hex.EncodeToString(b.data)
}

// PutU16 writes a big-endian uint16 at an absolute offset without
// touching the cursor. offset+2 must be within the buffer's current
// size (not capacity) in the same sense as append-based writes.
func (b *Buffer) PutU16(offset int, v uint16) error {
	if offset < 0 || offset+2 > len(b.data) {
		return ErrOutOfRange
	}
	binary.BigEndian.PutUint16(b.data[offset:offset+2], v)
	return nil
}
