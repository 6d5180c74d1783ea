// Package auth answers the daemon's registry credential callbacks from a
// per-session credential table.
package auth

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gantry-build/gantry/session"
	"github.com/gantry-build/gantry/wire"
)

const (
	credentialsPath       = "/moby.filesync.v1.Auth/Credentials"
	fetchTokenPath        = "/moby.filesync.v1.Auth/FetchToken"
	getTokenAuthorityPath = "/moby.filesync.v1.Auth/GetTokenAuthority"
)

// Credential is a username/secret pair for one registry host.
type Credential struct {
	Username string
	Secret   string
}

// Provider serves registry credentials from a static host-keyed table. The
// table is read-only for the lifetime of the session.
type Provider struct {
	credentials map[string]Credential
	logger      *zap.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger supplies the provider's logger. The default discards.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider over the given table. The map is copied;
// later mutation by the caller has no effect.
func NewProvider(credentials map[string]Credential, opts ...Option) *Provider {
	p := &Provider{
		credentials: make(map[string]Credential, len(credentials)),
		logger:      zap.NewNop(),
	}
	for host, c := range credentials {
		p.credentials[host] = c
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register implements session.Attachable.
func (p *Provider) Register(mux *session.Mux) {
	mux.HandleUnary(credentialsPath, p.credentialsHandler)
	mux.HandleUnary(fetchTokenPath, p.fetchTokenHandler)
	mux.HandleUnary(getTokenAuthorityPath, p.getTokenAuthorityHandler)
}

// lookup resolves host against the table. The Docker Hub API presents
// itself under several names; a table entry for docker.io covers them.
func (p *Provider) lookup(host string) (Credential, bool) {
	if c, ok := p.credentials[host]; ok {
		return c, true
	}
	if host == "registry-1.docker.io" || host == "index.docker.io" {
		if c, ok := p.credentials["docker.io"]; ok {
			return c, true
		}
	}
	return Credential{}, false
}

// credentialsHandler answers a host lookup. A miss is not an error: empty
// credentials tell the daemon to proceed anonymously.
func (p *Provider) credentialsHandler(_ context.Context, payload []byte) (wire.Message, error) {
	var req wire.CredentialsRequest
	if err := req.Unmarshal(payload); err != nil {
		return nil, err
	}
	c, ok := p.lookup(req.Host)
	p.logger.Debug("credentials requested",
		zap.String("host", req.Host), zap.Bool("found", ok))
	return &wire.CredentialsResponse{Username: c.Username, Secret: c.Secret}, nil
}

// fetchTokenHandler returns an empty token; the daemon performs its own
// token exchange with the credentials from Credentials.
func (p *Provider) fetchTokenHandler(_ context.Context, payload []byte) (wire.Message, error) {
	var req wire.FetchTokenRequest
	if err := req.Unmarshal(payload); err != nil {
		return nil, err
	}
	p.logger.Debug("token fetch requested",
		zap.String("host", req.Host), zap.String("realm", req.Realm))
	return &wire.FetchTokenResponse{}, nil
}

// getTokenAuthorityHandler refuses token-authority signing so the daemon
// falls back to the Credentials path.
func (p *Provider) getTokenAuthorityHandler(context.Context, []byte) (wire.Message, error) {
	return nil, status.Error(codes.Unimplemented, "token authority is not supported")
}
