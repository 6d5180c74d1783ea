// Package secrets exposes caller-supplied build secrets to the daemon.
package secrets

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gantry-build/gantry/session"
	"github.com/gantry-build/gantry/wire"
)

const getSecretPath = "/moby.buildkit.secrets.v1.Secrets/GetSecret"

// Store serves build secrets by id from a static map. The map is read-only
// for the lifetime of the session.
type Store struct {
	secrets map[string][]byte
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger supplies the store's logger. The default discards.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store over the given secrets. Values are copied.
func NewStore(secrets map[string][]byte, opts ...Option) *Store {
	s := &Store{
		secrets: make(map[string][]byte, len(secrets)),
		logger:  zap.NewNop(),
	}
	for id, data := range secrets {
		s.secrets[id] = append([]byte(nil), data...)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register implements session.Attachable.
func (s *Store) Register(mux *session.Mux) {
	mux.HandleUnary(getSecretPath, s.getSecretHandler)
}

func (s *Store) getSecretHandler(_ context.Context, payload []byte) (wire.Message, error) {
	var req wire.GetSecretRequest
	if err := req.Unmarshal(payload); err != nil {
		return nil, err
	}
	data, ok := s.secrets[req.ID]
	s.logger.Debug("secret requested", zap.String("id", req.ID), zap.Bool("found", ok))
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no secret with id %q", req.ID)
	}
	return &wire.GetSecretResponse{Data: data}, nil
}
