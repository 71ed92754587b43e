package bolt

import (
	"bufio"
	"net"
	"time"
)

// Channel is the collaborator a Connection drives (spec §6.1):
// byte-oriented, duplex, with no assumption about the underlying
// transport beyond in-order delivery and error propagation. A
// Connection owns exactly one Channel for its whole lifetime.
type Channel interface {
	Write(p []byte) (int, error)
	// Read blocks for the next slice of bytes the peer has sent. It
	// returns io.EOF once the peer has cleanly closed its side.
	Read(p []byte) (int, error)
	Close() error
}

// netChannel adapts a net.Conn to Channel, applying the configured
// read/write deadlines (if any) around each I/O call the way the
// teacher's server.Session drives its raw net.Conn directly.
type netChannel struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// DialTCP opens a TCP channel to address ("host:port"), the transport
// every Bolt deployment this driver targets actually uses.
func DialTCP(address string, dialTimeout, readTimeout, writeTimeout time.Duration) (Channel, error) {
	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &netChannel{conn: conn, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

func (c *netChannel) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.Write(p)
}

func (c *netChannel) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.conn.Read(p)
}

func (c *netChannel) Close() error { return c.conn.Close() }

// bufferedReader exposes the *bufio.Reader a handshake needs to hand
// off leftover bytes, wrapping any Channel.
func bufferedReader(ch Channel) *bufio.Reader {
	return bufio.NewReader(channelReader{ch})
}

type channelReader struct{ ch Channel }

func (r channelReader) Read(p []byte) (int, error) { return r.ch.Read(p) }
