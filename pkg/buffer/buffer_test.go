package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(8)

	b.WriteByte(0x42)
	b.WriteU16(0xBEEF)
	b.WriteI32(-12345)
	b.WriteI64(1<<62 + 7)
	b.WriteF64(3.14159)

	b.Reset()

	got, err := b.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), got)

	u16, err := b.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), u16)

	i32, err := b.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(-12345), i32)

	i64, err := b.ReadI64()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<62+7), i64)

	f64, err := b.ReadF64()
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, f64, 1e-12)

	assert.False(t, b.HasRemaining())
}

func TestReadPastEndIsError(t *testing.T) {
	b := New(0)
	b.WriteByte(1)
	b.Reset()

	_, err := b.ReadByte()
	require.NoError(t, err)

	_, err = b.ReadByte()
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCursorInvariant(t *testing.T) {
	b := New(4)
	b.WriteBytes([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, b.Size())
	assert.Equal(t, 4, b.Cursor())
	assert.Equal(t, 0, b.Remaining())

	require.NoError(t, b.Seek(1))
	assert.Equal(t, 3, b.Remaining())
}

func TestPutU16AtOffset(t *testing.T) {
	b := New(4)
	b.WriteBytes([]byte{0, 0, 0xFF, 0xFF})
	require.NoError(t, b.PutU16(0, 0x0102))

	b.Reset()
	v, err := b.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), v)
}

func TestToHex(t *testing.T) {
	b := New(2)
	b.WriteBytes([]byte{0xDE, 0xAD})
	assert.Equal(t, "dead", b.ToHex())
}
