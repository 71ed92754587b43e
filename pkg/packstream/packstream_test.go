package packstream

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornic-bolt-go/pkg/buffer"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	buf := buffer.New(16)
	p := NewPacker(buf, nil)
	require.NoError(t, p.Pack(v))
	buf.Reset()
	u := NewUnpacker(buf, nil, PreservePrecision)
	got, err := u.Unpack()
	require.NoError(t, err)
	return got
}

func TestRoundTripScalars(t *testing.T) {
	assert.Nil(t, roundTrip(t, nil))
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, false, roundTrip(t, false))
	assert.Equal(t, "hello, world", roundTrip(t, "hello, world"))
	assert.InDelta(t, 3.14159, roundTrip(t, 3.14159).(float64), 1e-12)
}

func TestRoundTripIntegers(t *testing.T) {
	values := []int64{
		0, 1, -1, 16, -16, -17, 127, 128, -128, -129,
		32767, -32768, 32768, -32769,
		2147483647, -2147483648, 2147483648, -2147483649,
		math.MaxInt64, math.MinInt64,
	}
	for _, v := range values {
		got := roundTrip(t, v)
		assert.Equal(t, v, got, "value %d", v)
	}
}

func TestIntegerWidthMinimality(t *testing.T) {
	cases := []struct {
		v      int64
		marker byte
	}{
		{0, 0x00},
		{127, 0x7F},
		{-1, 0xFF},
		{-16, 0xF0},
		{-17, Int8},
		{128, Int16},
		{32767, Int16},
		{32768, Int32},
		{2147483647, Int32},
		{2147483648, Int64},
	}
	for _, c := range cases {
		buf := buffer.New(8)
		p := NewPacker(buf, nil)
		p.PackInt(c.v)
		buf.Reset()
		m, err := buf.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, c.marker, m, "value %d", c.v)
	}
}

func TestRoundTripListAndDict(t *testing.T) {
	list := []any{int64(1), "two", 3.0, nil, true}
	got := roundTrip(t, list)
	assert.Equal(t, list, got)

	dict := map[string]any{"a": int64(1), "b": "two"}
	got2 := roundTrip(t, dict)
	assert.Equal(t, dict, got2)
}

func TestStringByteEquality(t *testing.T) {
	buf := buffer.New(8)
	p := NewPacker(buf, nil)
	p.PackString("hi")
	assert.Equal(t, []byte{TinyStringMin + 2, 'h', 'i'}, buf.Bytes())
}

func TestUnpackerAcceptsAnyIntWidth(t *testing.T) {
	// Even though PackInt would choose Int8 for 100, a conforming
	// encoder might (legally) use a wider marker; the unpacker must
	// still decode it correctly.
	buf := buffer.New(8)
	buf.WriteByte(Int64)
	buf.WriteI64(100)
	buf.Reset()

	u := NewUnpacker(buf, nil, PreservePrecision)
	v, err := u.UnpackInt()
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestLossyFloatPolicy(t *testing.T) {
	buf := buffer.New(8)
	p := NewPacker(buf, nil)
	p.PackInt(42)
	buf.Reset()

	u := NewUnpacker(buf, nil, LossyFloat)
	v, err := u.Unpack()
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)
}

func TestUseBigIntPolicy(t *testing.T) {
	buf := buffer.New(8)
	p := NewPacker(buf, nil)
	p.PackInt(9223372036854775807)
	buf.Reset()

	u := NewUnpacker(buf, nil, UseBigInt)
	v, err := u.Unpack()
	require.NoError(t, err)
	bi, ok := v.(*big.Int)
	require.True(t, ok)
	assert.Equal(t, "9223372036854775807", bi.String())
}

func TestEmptyStringAndCollections(t *testing.T) {
	assert.Equal(t, "", roundTrip(t, ""))
	assert.Equal(t, []any{}, roundTrip(t, []any{}))
	assert.Equal(t, map[string]any{}, roundTrip(t, map[string]any{}))
}
