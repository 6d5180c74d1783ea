// Package session maintains a long-lived bidirectional stream with the build
// daemon and hosts, inside that stream, the gRPC server endpoint the daemon
// calls back into for file sync, credentials and health probes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/gantry-build/gantry/errdefs"
	"github.com/gantry-build/gantry/wire"
)

// Metadata header names the daemon inspects to bind callbacks to a session.
// The same headers must appear on the Session stream and on the Solve call
// that references the session.
const (
	headerSessionID        = "x-docker-expose-session-uuid"
	headerSessionName      = "x-docker-expose-session-name"
	headerSessionSharedKey = "x-docker-expose-session-sharedkey"
	headerSessionMethod    = "x-docker-expose-session-grpc-method"
)

// sessionMethodPath is the outer streaming method carrying the tunnel.
const sessionMethodPath = "/moby.buildkit.v1.Control/Session"

var sessionStreamDesc = grpc.StreamDesc{
	StreamName:    "Session",
	ClientStreams: true,
	ServerStreams: true,
}

// channelDepth is the buffering of the byte-frame channels in each
// direction between the outer stream and the tunnel.
const channelDepth = 128

type sessionState int

const (
	stateNew sessionState = iota
	stateRunning
	stateTerminated
)

// Attachable registers inner method handlers on a session's route table.
type Attachable interface {
	Register(mux *Mux)
}

// Session is one ephemeral attachment to the daemon. It owns the outer
// stream, the byte-frame channels and the inner server. Sessions are not
// reusable after Close.
type Session struct {
	id        string
	name      string
	sharedKey string

	mux    *Mux
	logger *zap.Logger

	mu       sync.Mutex
	state    sessionState
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithLogger supplies the session's logger. The default discards.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a session with fresh identity and a health probe
// already routed. Attach further handlers with Allow before calling Run.
func NewSession(name string, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		name:      name,
		sharedKey: fmt.Sprintf("session-%s", uuid.NewString()),
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux = NewMux(s.logger)
	registerHealth(s.mux)
	return s
}

// ID returns the session UUID.
func (s *Session) ID() string { return s.id }

// Name returns the human-readable session name.
func (s *Session) Name() string { return s.name }

// SharedKey returns the key a build request uses to bind its context source
// to this session.
func (s *Session) SharedKey() string { return s.sharedKey }

// Allow registers a's handlers on the session's route table. Must be called
// before Run; the table is read-only once the session is running.
func (s *Session) Allow(a Attachable) {
	a.Register(s.mux)
}

// Metadata returns the request headers advertising this session's identity
// and its routed inner methods. The advertised method set always equals the
// set of paths the inner server routes.
func (s *Session) Metadata() metadata.MD {
	md := metadata.MD{}
	md.Set(headerSessionID, s.id)
	md.Set(headerSessionName, s.name)
	md.Set(headerSessionSharedKey, s.sharedKey)
	md.Set(headerSessionMethod, s.mux.Paths()...)
	return md
}

// Run opens the outer stream on conn and serves inner calls until the
// stream ends, the context is cancelled or Close is called. A clean
// shutdown (peer EOF or local close) returns nil.
func (s *Session) Run(ctx context.Context, conn grpc.ClientConnInterface) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state != stateNew {
		s.mu.Unlock()
		cancel()
		return errors.New("session is not in its initial state")
	}
	s.state = stateRunning
	s.cancel = cancel
	s.mu.Unlock()
	defer s.terminate()

	ctx = metadata.NewOutgoingContext(ctx, s.Metadata())
	stream, err := conn.NewStream(ctx, &sessionStreamDesc, sessionMethodPath, grpc.ForceCodec(wire.Codec{}))
	if err != nil {
		return errdefs.Unavailable(fmt.Errorf("opening session stream: %w", err))
	}
	s.logger.Debug("session stream established",
		zap.String("session", s.id),
		zap.Strings("methods", s.mux.Paths()))

	inbound := make(chan []byte, channelDepth)
	outbound := make(chan []byte, channelDepth)
	tc := newStreamConn(inbound, outbound)

	g, gctx := errgroup.WithContext(ctx)

	// outer receive: response stream -> inbound channel
	g.Go(func() error {
		defer close(inbound)
		for {
			var msg wire.BytesMessage
			if err := stream.RecvMsg(&msg); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return errdefs.Transport(err)
			}
			select {
			case inbound <- msg.Data:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	// outer send: outbound channel -> request stream
	g.Go(func() error {
		for {
			select {
			case data := <-outbound:
				if err := stream.SendMsg(&wire.BytesMessage{Data: data}); err != nil {
					return errdefs.Transport(err)
				}
			case <-tc.Done():
				// flush whatever the tunnel queued before it closed
				for {
					select {
					case data := <-outbound:
						if err := stream.SendMsg(&wire.BytesMessage{Data: data}); err != nil {
							return errdefs.Transport(err)
						}
					default:
						return stream.CloseSend()
					}
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	// inner server on the bridged conn
	g.Go(func() error {
		defer tc.Close()
		s.mux.ServeConn(gctx, tc)
		return nil
	})

	// tear the conn down when the group context ends, unblocking ServeConn
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-tc.Done():
		}
		tc.Close()
		return nil
	})

	err = g.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) ||
		status.Code(err) == codes.Canceled {
		s.logger.Debug("session ended", zap.String("session", s.id))
		return nil
	}
	s.logger.Debug("session failed", zap.String("session", s.id), zap.Error(err))
	return err
}

// Close terminates the session, cancelling the outer stream and every inner
// call. It is idempotent and safe to call before Run.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	if s.state != stateTerminated {
		s.state = stateTerminated
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	} else {
		// never started: no Run will close done on its way out
		s.doneOnce.Do(func() { close(s.done) })
	}
	return nil
}

// Done is closed once the session reaches its terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) terminate() {
	s.mu.Lock()
	s.state = stateTerminated
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}
