package handshake

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	written bytes.Buffer
	reply   *bytes.Buffer
}

func (c *fakeConn) Write(p []byte) (int, error) { return c.written.Write(p) }
func (c *fakeConn) Read(p []byte) (int, error)  { return c.reply.Read(p) }

func TestPerformEncodesPreambleAndParsesSelection(t *testing.T) {
	conn := &fakeConn{reply: bytes.NewBuffer([]byte{0x00, 0x00, 0x04, 0x05})}
	r := bufio.NewReader(conn)

	result, err := Perform(conn, r, []Range{Single(5, 4), Single(5, 3), Single(4, 4), Single(4, 3)})
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 5, Minor: 4}, result.Version)
	assert.Equal(t, "5.4", result.Version.String())

	written := conn.written.Bytes()
	require.Len(t, written, 20)
	assert.Equal(t, Magic[:], written[0:4])
}

func TestPerformEncodesVersionRangeSpan(t *testing.T) {
	r := Range{Major: 4, MinMinor: 0, MaxMinor: 4}
	encoded := r.encode()
	// high 16 bits: span (4); low 16 bits: minor=4, major=4
	assert.Equal(t, uint32(4)<<16|uint32(4)<<8|uint32(4), encoded)
}

func TestPerformDetectsHTTPMisdirection(t *testing.T) {
	conn := &fakeConn{reply: bytes.NewBuffer([]byte("HTTP"))}
	r := bufio.NewReader(conn)

	_, err := Perform(conn, r, []Range{Single(5, 4)})
	require.ErrorIs(t, err, ErrHTTPEndpoint)
}

func TestPerformDetectsNoCompatibleVersion(t *testing.T) {
	conn := &fakeConn{reply: bytes.NewBuffer([]byte{0x00, 0x00, 0x00, 0x00})}
	r := bufio.NewReader(conn)

	_, err := Perform(conn, r, []Range{Single(5, 4)})
	require.ErrorIs(t, err, ErrNoCompatibleVersion)
}

func TestPerformRejectsTooManyRanges(t *testing.T) {
	conn := &fakeConn{reply: bytes.NewBuffer(nil)}
	r := bufio.NewReader(conn)

	_, err := Perform(conn, r, []Range{Single(5, 4), Single(5, 3), Single(5, 2), Single(5, 1), Single(5, 0)})
	require.Error(t, err)
}

func TestPerformHandsOffLeftoverBytes(t *testing.T) {
	selection := []byte{0x00, 0x00, 0x04, 0x04}
	extra := []byte{0x00, 0x01, 0x7F, 0x99}
	conn := &fakeConn{reply: bytes.NewBuffer(append(selection, extra...))}
	r := bufio.NewReader(conn)
	// force a single underlying Read to pull in both the selection and
	// the following bytes, as a real buffered socket read would.
	_, _ = r.Peek(len(selection) + len(extra))

	result, err := Perform(conn, r, []Range{Single(4, 4)})
	require.NoError(t, err)
	assert.Equal(t, extra, result.Leftover)
}
