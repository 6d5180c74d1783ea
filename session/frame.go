package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"

	"github.com/gantry-build/gantry/errdefs"
	"github.com/gantry-build/gantry/wire"
)

// gRPC length-prefixed message framing: one compression flag byte (always
// zero here), four bytes big-endian payload length, then the payload.
const frameHeaderLen = 5

// maxFrameSize bounds a single inner message. The daemon's packets top out
// well below this; anything larger is a framing error, not a real message.
const maxFrameSize = 16 << 20

// appendFrame frames payload for the wire.
func appendFrame(dst, payload []byte) []byte {
	dst = append(dst, 0)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(payload)))
	dst = append(dst, l[:]...)
	return append(dst, payload...)
}

// frameReader peels complete gRPC messages out of an HTTP/2 request body.
// Inbound bytes arrive in arbitrary-sized chunks: a message may span many
// chunks and many messages may share one chunk, so bytes that do not yet
// complete a message are retained across reads.
type frameReader struct {
	r       io.Reader
	buf     []byte
	scratch []byte
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: r, scratch: make([]byte, 32*1024)}
}

// Next returns the payload of the next complete message, io.EOF after the
// peer cleanly half-closes, or a protocol error for malformed framing. A
// message already buffered whole is returned without blocking for more
// chunks.
func (fr *frameReader) Next() ([]byte, error) {
	for {
		payload, ok, err := fr.peel()
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}
		n, err := fr.r.Read(fr.scratch)
		if n > 0 {
			fr.buf = append(fr.buf, fr.scratch[:n]...)
			continue
		}
		if err == nil {
			continue
		}
		if err == io.EOF {
			if len(fr.buf) > 0 {
				return nil, errdefs.Protocol(fmt.Errorf("stream ended with %d trailing bytes of a partial message", len(fr.buf)))
			}
			return nil, io.EOF
		}
		return nil, errdefs.Transport(err)
	}
}

// peel attempts to remove one message from the front of the buffer.
func (fr *frameReader) peel() ([]byte, bool, error) {
	if len(fr.buf) < frameHeaderLen {
		return nil, false, nil
	}
	if fr.buf[0] != 0 {
		return nil, false, errdefs.Protocol(fmt.Errorf("unsupported compression flag 0x%02x", fr.buf[0]))
	}
	msgLen := int(binary.BigEndian.Uint32(fr.buf[1:frameHeaderLen]))
	if msgLen > maxFrameSize {
		return nil, false, errdefs.Protocol(fmt.Errorf("message of %d bytes exceeds frame limit", msgLen))
	}
	if len(fr.buf) < frameHeaderLen+msgLen {
		return nil, false, nil
	}
	var payload []byte
	if msgLen > 0 {
		payload = make([]byte, msgLen)
		copy(payload, fr.buf[frameHeaderLen:frameHeaderLen+msgLen])
	}
	fr.buf = fr.buf[frameHeaderLen+msgLen:]
	return payload, true, nil
}

// ServerStream is the handler-facing side of one inner bidi-streaming call.
// Receives yield complete messages; sends frame and flush one message each.
// It is not safe for concurrent sends from multiple goroutines.
type ServerStream struct {
	ctx context.Context
	fr  *frameReader
	w   io.Writer
	fl  http.Flusher
}

// Context returns the call context; it is cancelled when the session or the
// stream terminates.
func (s *ServerStream) Context() context.Context { return s.ctx }

// RecvMsg decodes the next inbound message into m. Returns io.EOF once the
// peer half-closes its side of the stream.
func (s *ServerStream) RecvMsg(m wire.Message) error {
	if err := s.ctx.Err(); err != nil {
		return errdefs.Cancelled(err)
	}
	payload, err := s.fr.Next()
	if err != nil {
		return err
	}
	if err := m.Unmarshal(payload); err != nil {
		return errdefs.Protocol(err)
	}
	return nil
}

// SendMsg frames m and flushes it to the peer.
func (s *ServerStream) SendMsg(m wire.Message) error {
	if err := s.ctx.Err(); err != nil {
		return errdefs.Cancelled(err)
	}
	payload, err := m.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(appendFrame(nil, payload)); err != nil {
		return errdefs.Transport(err)
	}
	if s.fl != nil {
		s.fl.Flush()
	}
	return nil
}
