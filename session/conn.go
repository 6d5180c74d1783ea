package session

import (
	"io"
	"net"
	"sync"
	"time"
)

// streamConn adapts the pair of byte-frame channels connecting a session to
// its tunnel into a net.Conn, so an HTTP/2 endpoint can run on top of them.
// Reads pull whole frames from inbound and surface them piecewise; every
// Write becomes exactly one outbound frame. Byte ordering is preserved per
// direction; nothing at this layer interprets HTTP/2 framing.
type streamConn struct {
	inbound  <-chan []byte
	outbound chan<- []byte

	// leftover of the frame currently being read
	buf []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newStreamConn(inbound <-chan []byte, outbound chan<- []byte) *streamConn {
	return &streamConn{
		inbound:  inbound,
		outbound: outbound,
		closed:   make(chan struct{}),
	}
}

func (c *streamConn) Read(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	for len(c.buf) == 0 {
		select {
		case data, ok := <-c.inbound:
			if !ok {
				return 0, io.EOF
			}
			c.buf = data
		case <-c.closed:
			return 0, net.ErrClosed
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	// the HTTP/2 server reuses its write buffers; copy before handing off
	data := make([]byte, len(p))
	copy(data, p)
	select {
	case c.outbound <- data:
		return len(p), nil
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

// Close makes subsequent reads and writes fail and unblocks any in flight.
// It is idempotent.
func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// Done is closed once the conn is closed.
func (c *streamConn) Done() <-chan struct{} { return c.closed }

func (c *streamConn) LocalAddr() net.Addr  { return sessionAddr{} }
func (c *streamConn) RemoteAddr() net.Addr { return sessionAddr{} }

// The tunnel has no useful notion of deadlines; the outer stream's context
// governs cancellation.
func (c *streamConn) SetDeadline(time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(time.Time) error { return nil }

type sessionAddr struct{}

func (sessionAddr) Network() string { return "session" }
func (sessionAddr) String() string  { return "session" }
