package gantry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/gantry-build/gantry/auth"
	"github.com/gantry-build/gantry/errdefs"
	"github.com/gantry-build/gantry/filesync"
	"github.com/gantry-build/gantry/secrets"
	"github.com/gantry-build/gantry/session"
	"github.com/gantry-build/gantry/wire"
)

// Client drives builds on a daemon reachable over an established gRPC
// channel. The channel's transport, including any TLS, is the caller's
// responsibility.
type Client struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger supplies the client's logger. The default discards.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient wraps an established channel to the daemon.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{
		conn:   conn,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildResult reports a completed build.
type BuildResult struct {
	// Digest is the image digest, when the exporter reported one.
	Digest string
	// ExporterResponse holds all exporter-reported attributes.
	ExporterResponse map[string]string
}

// Build runs one build: it starts a session carrying the request's local
// context, credentials and secrets, then issues the solve bound to that
// session and waits for it to finish. The session is torn down before Build
// returns.
func (c *Client) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	buildRef := fmt.Sprintf("build-%s", uuid.NewString())

	sess := session.NewSession("gantry", session.WithLogger(c.logger))

	if req.ContextDir != "" {
		dir, err := filepath.Abs(req.ContextDir)
		if err != nil {
			return nil, errdefs.Resource(err)
		}
		fi, err := os.Stat(dir)
		if err != nil {
			return nil, errdefs.Resource(err)
		}
		if !fi.IsDir() {
			return nil, errdefs.Resource(fmt.Errorf("context path %s is not a directory", dir))
		}
		fsync, err := filesync.New(filesync.SyncedDir{
			Name:   "context",
			Dir:    dir,
			Ignore: req.Ignore,
		}, filesync.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		sess.Allow(fsync)
	}

	// always route the credential callbacks; a miss yields empty
	// credentials rather than Unimplemented
	sess.Allow(auth.NewProvider(req.credentialTable(), auth.WithLogger(c.logger)))
	if len(req.Secrets) > 0 {
		sess.Allow(secrets.NewStore(req.Secrets, secrets.WithLogger(c.logger)))
	}

	sessCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()
	sessErr := make(chan error, 1)
	go func() {
		sessErr <- sess.Run(sessCtx, c.conn)
	}()
	defer sess.Close()

	solveReq := newSolveRequest(req, sess, buildRef)
	c.logger.Debug("starting solve",
		zap.String("ref", buildRef),
		zap.String("session", sess.ID()))

	ctx = metadata.NewOutgoingContext(ctx, sess.Metadata())
	var resp wire.SolveResponse
	if err := c.conn.Invoke(ctx, solveMethodPath, solveReq, &resp, grpc.ForceCodec(wire.Codec{})); err != nil {
		return nil, classifySolveError(err)
	}

	cancelSession()
	if err := <-sessErr; err != nil {
		// the build finished; a session teardown error is advisory
		c.logger.Debug("session closed with error", zap.Error(err))
	}

	return &BuildResult{
		Digest:           resp.ExporterResponse["containerimage.digest"],
		ExporterResponse: resp.ExporterResponse,
	}, nil
}

// classifySolveError tags a failed solve with the error kind callers key
// retry decisions on. A daemon refusing the session binding is a protocol
// fault, not a transport one.
func classifySolveError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errdefs.Cancelled(err)
	}
	if strings.Contains(err.Error(), "no active session") {
		return errdefs.Protocol(err)
	}
	switch errdefs.GetKind(err) {
	case errdefs.KindUnavailable:
		return errdefs.Unavailable(err)
	case errdefs.KindCancelled:
		return errdefs.Cancelled(err)
	}
	return errdefs.Transport(err)
}
