package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gantry-build/gantry/errdefs"
	"github.com/gantry-build/gantry/wire"
)

// UnaryHandler answers a single-message inner call. The argument is the
// decoded gRPC payload; the returned message is framed and sent back.
type UnaryHandler func(ctx context.Context, payload []byte) (wire.Message, error)

// StreamHandler drives one inner bidi-streaming call. The handler signals
// completion by returning; the mux then emits the closing trailers.
type StreamHandler func(stream *ServerStream) error

// Mux routes inner calls by gRPC method path. The route set is closed once
// the session starts: writes happen at session construction, reads only
// thereafter.
type Mux struct {
	logger *zap.Logger
	routes map[string]route
}

type route struct {
	unary  UnaryHandler
	stream StreamHandler
}

// NewMux creates an empty route table. Sessions build their own; a
// standalone Mux is mainly useful for exercising handlers over a raw conn.
func NewMux(logger *zap.Logger) *Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mux{
		logger: logger,
		routes: map[string]route{},
	}
}

// HandleUnary registers a unary method at path, of the form
// "/service.Name/Method".
func (m *Mux) HandleUnary(path string, h UnaryHandler) {
	m.routes[path] = route{unary: h}
}

// HandleStream registers a bidi-streaming method at path.
func (m *Mux) HandleStream(path string, h StreamHandler) {
	m.routes[path] = route{stream: h}
}

// Paths returns every routed method path in sorted order. The session
// advertises exactly this set on the outer call.
func (m *Mux) Paths() []string {
	paths := make([]string, 0, len(m.routes))
	for p := range m.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ServeConn runs the HTTP/2 server endpoint on the bridged transport until
// the conn fails or ctx ends.
func (m *Mux) ServeConn(ctx context.Context, conn net.Conn) {
	(&http2.Server{}).ServeConn(conn, &http2.ServeConnOpts{
		Context: ctx,
		Handler: m,
	})
}

// ServeHTTP handles one inner HTTP/2 stream as a gRPC call. Every response,
// on every exit path including panics, ends with trailers carrying
// grpc-status; the daemon hangs forever on a response without them.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	h := w.Header()
	h.Set("Content-Type", "application/grpc")
	h.Add("Trailer", "Grpc-Status")
	h.Add("Trailer", "Grpc-Message")
	w.WriteHeader(http.StatusOK)

	var callErr error
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("inner handler panicked",
				zap.String("path", path), zap.Any("panic", p))
			callErr = status.Errorf(codes.Internal, "panic in handler for %s", path)
		}
		writeTrailers(h, callErr)
	}()

	rt, ok := m.routes[path]
	if !ok {
		m.logger.Debug("inner call for unserved path", zap.String("path", path))
		callErr = status.Errorf(codes.Unimplemented, "%s not implemented", path)
		return
	}

	m.logger.Debug("serving inner call", zap.String("path", path))
	switch {
	case rt.unary != nil:
		callErr = m.serveUnary(w, r, rt.unary)
	default:
		callErr = m.serveStream(w, r, rt.stream)
	}
	if callErr != nil {
		m.logger.Debug("inner call failed",
			zap.String("path", path), zap.Error(callErr))
	}
}

// serveUnary accumulates the request until the peer half-closes, expects
// exactly one framed message, and answers with one framed message.
func (m *Mux) serveUnary(w http.ResponseWriter, r *http.Request, h UnaryHandler) error {
	fr := newFrameReader(r.Body)
	payload, err := fr.Next()
	if err == io.EOF {
		return status.Error(codes.InvalidArgument, "unary call carried no request message")
	}
	if err != nil {
		return toStatus(err)
	}
	if _, err := fr.Next(); err != io.EOF {
		if err == nil {
			return status.Error(codes.InvalidArgument, "unary call carried more than one request message")
		}
		return toStatus(err)
	}

	resp, err := h(r.Context(), payload)
	if err != nil {
		return err
	}
	out, err := resp.Marshal()
	if err != nil {
		return status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	if _, err := w.Write(appendFrame(nil, out)); err != nil {
		return status.Errorf(codes.Unavailable, "writing response: %v", err)
	}
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}

func (m *Mux) serveStream(w http.ResponseWriter, r *http.Request, h StreamHandler) error {
	fl, _ := w.(http.Flusher)
	if fl != nil {
		// release response headers before the first message
		fl.Flush()
	}
	ss := &ServerStream{
		ctx: r.Context(),
		fr:  newFrameReader(r.Body),
		w:   w,
		fl:  fl,
	}
	return h(ss)
}

// writeTrailers records the call's closing status into the declared
// trailers. A nil err is grpc-status 0.
func writeTrailers(h http.Header, err error) {
	if err != nil {
		err = toStatus(err)
	}
	st := status.Convert(err)
	h.Set("Grpc-Status", fmt.Sprintf("%d", int(st.Code())))
	if msg := st.Message(); msg != "" {
		h.Set("Grpc-Message", msg)
	}
}

// toStatus maps tunnel-internal errors onto gRPC statuses for trailers.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch errdefs.GetKind(err) {
	case errdefs.KindProtocol:
		return status.Error(codes.InvalidArgument, err.Error())
	case errdefs.KindTransport:
		return status.Error(codes.Unavailable, err.Error())
	case errdefs.KindCancelled:
		return status.Error(codes.Canceled, err.Error())
	case errdefs.KindResource:
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
