// Package filesync streams a local directory to the build daemon over the
// session tunnel, answering the daemon's stat/request/data protocol.
package filesync

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moby/patternmatcher"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gantry-build/gantry/errdefs"
	"github.com/gantry-build/gantry/session"
	"github.com/gantry-build/gantry/wire"
)

// diffCopyPath is the inner method the daemon calls to pull the build
// context.
const diffCopyPath = "/moby.filesync.v1.FileSync/DiffCopy"

// chunkSize is the read size for file serving. Each full chunk becomes one
// DATA packet.
const chunkSize = 32 * 1024

// SyncedDir is a directory exposed to the daemon under a logical name.
type SyncedDir struct {
	// Name is the logical mount name the build request refers to.
	Name string
	// Dir is the local root to serve.
	Dir string
	// Ignore holds .dockerignore-style patterns; matching entries and, for
	// directories, their whole subtrees are omitted.
	Ignore []string
}

// FileSync serves DiffCopy calls for one synced directory.
type FileSync struct {
	dir    SyncedDir
	pm     *patternmatcher.PatternMatcher
	logger *zap.Logger
}

// Option configures a FileSync.
type Option func(*FileSync)

// WithLogger supplies the handler's logger. The default discards.
func WithLogger(logger *zap.Logger) Option {
	return func(fs *FileSync) {
		fs.logger = logger
	}
}

// New creates a FileSync for dir. The ignore patterns are compiled once
// here; a bad pattern fails construction rather than the first call.
func New(dir SyncedDir, opts ...Option) (*FileSync, error) {
	fs := &FileSync{
		dir:    dir,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	// lines starting with # are comments, as in a .dockerignore file
	var patterns []string
	for _, p := range dir.Ignore {
		if !strings.HasPrefix(p, "#") {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) > 0 {
		pm, err := patternmatcher.New(patterns)
		if err != nil {
			return nil, fmt.Errorf("compiling ignore patterns: %w", err)
		}
		fs.pm = pm
	}
	return fs, nil
}

// Register implements session.Attachable.
func (fs *FileSync) Register(mux *session.Mux) {
	mux.HandleStream(diffCopyPath, fs.diffCopy)
}

// diffCopy drives one sync: emit a STAT per entry and the listing
// terminator, then serve REQs until the peer sends FIN, then answer with
// our own FIN. The call owns all per-call state; nothing is shared between
// concurrent calls.
func (fs *FileSync) diffCopy(stream *session.ServerStream) error {
	files := map[uint32]string{}

	w := &walker{root: fs.dir.Dir, pm: fs.pm}
	err := w.walk(stream.Context(), func(id uint32, st *wire.Stat, fullPath string, regular bool) error {
		if regular {
			files[id] = fullPath
		}
		return stream.SendMsg(&wire.Packet{Type: wire.PacketStat, Stat: st, ID: id})
	})
	if err != nil {
		return fs.abort(stream, errdefs.Resource(err))
	}
	// listing terminator: STAT kind, no stat record
	if err := stream.SendMsg(&wire.Packet{Type: wire.PacketStat}); err != nil {
		return err
	}
	fs.logger.Debug("directory listing sent",
		zap.String("name", fs.dir.Name),
		zap.String("dir", fs.dir.Dir),
		zap.Int("files", len(files)))

	// Serve until the peer finishes. A FIN observed here must stop both the
	// packet dispatch and any further reads from the stream; the flag keeps
	// us from blocking on a byte-frame that will never arrive.
	finished := false
	for !finished {
		var pkt wire.Packet
		if err := stream.RecvMsg(&pkt); err != nil {
			if err == io.EOF {
				return fs.abort(stream, errdefs.Protocol(fmt.Errorf("peer closed stream without FIN")))
			}
			return err
		}
		switch pkt.Type {
		case wire.PacketReq:
			path, ok := files[pkt.ID]
			if !ok {
				return fs.abort(stream, errdefs.Protocol(fmt.Errorf("request for unknown file id %d", pkt.ID)))
			}
			if err := fs.serveFile(stream, pkt.ID, path); err != nil {
				return fs.abort(stream, err)
			}
		case wire.PacketFin:
			finished = true
		case wire.PacketErr:
			return status.Errorf(codes.Aborted, "peer aborted sync: %s", pkt.Data)
		default:
			fs.logger.Debug("unexpected packet kind from peer",
				zap.Stringer("kind", pkt.Type), zap.Uint32("id", pkt.ID))
			return fs.abort(stream, errdefs.Protocol(fmt.Errorf("unexpected %s packet from peer", pkt.Type)))
		}
	}

	return stream.SendMsg(&wire.Packet{Type: wire.PacketFin})
}

// serveFile answers one REQ: the file's bytes as DATA packets in offset
// order, then one empty DATA as that file's EOF.
func (fs *FileSync) serveFile(stream *session.ServerStream, id uint32, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errdefs.Resource(err)
	}
	defer f.Close()

	fs.logger.Debug("serving file", zap.Uint32("id", id), zap.String("path", path))
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if serr := stream.SendMsg(&wire.Packet{Type: wire.PacketData, ID: id, Data: buf[:n]}); serr != nil {
				return serr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errdefs.Resource(err)
		}
	}
	return stream.SendMsg(&wire.Packet{Type: wire.PacketData, ID: id})
}

// abort reports err to the peer as an ERR packet, best effort, and returns
// the error so the call closes with a non-zero status.
func (fs *FileSync) abort(stream *session.ServerStream, err error) error {
	fs.logger.Debug("aborting sync", zap.Error(err))
	_ = stream.SendMsg(&wire.Packet{Type: wire.PacketErr, Data: []byte(err.Error())})
	return err
}
