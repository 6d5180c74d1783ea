package gantry

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/gantry-build/gantry/errdefs"
	"github.com/gantry-build/gantry/wire"
)

func init() {
	// the stub daemon's grpc server resolves its codec by content-subtype;
	// registering ours lets it decode the hand-encoded wire types
	encoding.RegisterCodec(wire.Codec{})
}

type solveCapture struct {
	md  metadata.MD
	req *wire.SolveRequest
}

// stubDaemon implements just enough of the control API for Build: it parks
// the Session stream and answers Solve.
type stubDaemon struct {
	rejectSession bool
	solves        chan solveCapture
}

func (d *stubDaemon) sessionHandler(_ interface{}, stream grpc.ServerStream) error {
	<-stream.Context().Done()
	return nil
}

func (d *stubDaemon) solveHandler(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &wire.SolveRequest{}
	if err := dec(req); err != nil {
		return nil, err
	}
	md, _ := metadata.FromIncomingContext(ctx)
	d.solves <- solveCapture{md: md.Copy(), req: req}
	if d.rejectSession {
		return nil, status.Error(codes.InvalidArgument, "no active session")
	}
	return &wire.SolveResponse{ExporterResponse: map[string]string{
		"containerimage.digest": "sha256:0000000000000000000000000000000000000000000000000000000000000000",
	}}, nil
}

func startStubDaemon(t *testing.T, daemon *stubDaemon) grpc.ClientConnInterface {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "moby.buildkit.v1.Control",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Solve",
			Handler:    daemon.solveHandler,
		}},
		Streams: []grpc.StreamDesc{{
			StreamName:    "Session",
			Handler:       daemon.sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, daemon)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///daemon",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func TestBuildLocalContext(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Dockerfile"), []byte("FROM scratch\n"), 0o644))

	daemon := &stubDaemon{solves: make(chan solveCapture, 1)}
	conn := startStubDaemon(t, daemon)
	client := NewClient(conn)

	result, err := client.Build(context.Background(), BuildRequest{
		ContextDir: root,
		Tags:       []string{"registry.example.com/app:latest"},
		Push:       true,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Digest, "sha256:"))

	var capture solveCapture
	select {
	case capture = <-daemon.solves:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never saw the solve")
	}

	// the solve call carries the same session binding headers as the stream
	require.Len(t, capture.md.Get("x-docker-expose-session-uuid"), 1)
	assert.Equal(t, capture.md.Get("x-docker-expose-session-uuid")[0], capture.req.Session)
	assert.NotEmpty(t, capture.md.Get("x-docker-expose-session-sharedkey"))
	methods := capture.md.Get("x-docker-expose-session-grpc-method")
	assert.Contains(t, methods, "/grpc.health.v1.Health/Check")
	assert.Contains(t, methods, "/moby.filesync.v1.FileSync/DiffCopy")

	assert.Equal(t, "dockerfile.v0", capture.req.Frontend)
	ctxRef := capture.req.FrontendAttrs["context"]
	assert.True(t, strings.HasPrefix(ctxRef, "input:"), ctxRef)
	assert.True(t, strings.HasSuffix(ctxRef, ":context"), ctxRef)
}

func TestBuildMissingSessionBinding(t *testing.T) {
	root := t.TempDir()
	daemon := &stubDaemon{rejectSession: true, solves: make(chan solveCapture, 1)}
	conn := startStubDaemon(t, daemon)
	client := NewClient(conn)

	_, err := client.Build(context.Background(), BuildRequest{ContextDir: root})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindProtocol, errdefs.GetKind(err))
	assert.Contains(t, err.Error(), "no active session")
}

func TestBuildRejectsBadContext(t *testing.T) {
	daemon := &stubDaemon{solves: make(chan solveCapture, 1)}
	conn := startStubDaemon(t, daemon)
	client := NewClient(conn)

	_, err := client.Build(context.Background(), BuildRequest{})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindResource, errdefs.GetKind(err))

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = client.Build(context.Background(), BuildRequest{ContextDir: file})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindResource, errdefs.GetKind(err))
}
