package gantry

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/gantry-build/gantry/auth"
	"github.com/gantry-build/gantry/errdefs"
	"github.com/gantry-build/gantry/session"
	"github.com/gantry-build/gantry/wire"
)

const (
	solveMethodPath = "/moby.buildkit.v1.Control/Solve"

	// frontendDockerfile selects the daemon's dockerfile frontend.
	frontendDockerfile = "dockerfile.v0"
)

// BuildRequest describes one build. Exactly one of ContextDir and GitURL
// must be set.
type BuildRequest struct {
	// ContextDir is the local build context root, streamed to the daemon
	// through the session.
	ContextDir string
	// Ignore holds .dockerignore-style patterns applied to the local
	// context.
	Ignore []string

	// GitURL selects a remote VCS build context instead of a local one.
	GitURL string
	// GitRef is an optional branch, tag or commit appended to GitURL as a
	// fragment.
	GitRef string
	// GitToken authenticates against the VCS host; it is served to the
	// daemon through the session's credential callback.
	GitToken string

	// DockerfilePath is the dockerfile location relative to the context
	// root; empty means the frontend default.
	DockerfilePath string
	// BuildArgs are the ARG values for the build.
	BuildArgs map[string]string
	// Target selects a stage of a multi-stage build.
	Target string
	// Platforms lists target platforms, e.g. "linux/amd64".
	Platforms []string

	// Tags are the image names to export.
	Tags []string
	// Push uploads the exported image to the tags' registries.
	Push bool

	// CacheFrom lists registry refs to import build cache from.
	CacheFrom []string
	// CacheTo lists registry refs to export build cache to.
	CacheTo []string

	// Credentials maps registry hosts to credentials served on the
	// session's credential callback.
	Credentials map[string]auth.Credential
	// Secrets maps secret ids to values mounted during the build.
	Secrets map[string][]byte

	// NoCache disables build cache use.
	NoCache bool
	// Pull always re-resolves base images.
	Pull bool
}

func (r *BuildRequest) validate() error {
	if (r.ContextDir == "") == (r.GitURL == "") {
		return errdefs.Resource(errors.New("exactly one of ContextDir and GitURL must be set"))
	}
	return nil
}

// credentialTable merges explicit registry credentials with the VCS token,
// producing the table the session's credential handler serves from.
func (r *BuildRequest) credentialTable() map[string]auth.Credential {
	creds := make(map[string]auth.Credential, len(r.Credentials)+1)
	for host, c := range r.Credentials {
		creds[host] = c
	}
	if r.GitToken != "" && r.GitURL != "" {
		if u, err := url.Parse(r.GitURL); err == nil && u.Host != "" {
			creds[u.Host] = auth.Credential{
				Username: "x-access-token",
				Secret:   r.GitToken,
			}
		}
	}
	return creds
}

// newSolveRequest composes the daemon's solve request for req, bound to
// sess. The context reference is what ties a local build context to the
// session's file-sync handler.
func newSolveRequest(req BuildRequest, sess *session.Session, buildRef string) *wire.SolveRequest {
	attrs := map[string]string{}
	for k, v := range req.BuildArgs {
		attrs["build-arg:"+k] = v
	}
	if req.DockerfilePath != "" {
		attrs["filename"] = req.DockerfilePath
	}
	if req.Target != "" {
		attrs["target"] = req.Target
	}
	if len(req.Platforms) > 0 {
		attrs["platform"] = strings.Join(req.Platforms, ",")
	}
	if req.NoCache {
		attrs["no-cache"] = "true"
	}
	if req.Pull {
		attrs["image-resolve-mode"] = "pull"
	}
	attrs["context"] = contextRef(req, sess)

	var exporters []wire.Exporter
	if len(req.Tags) > 0 {
		eattrs := map[string]string{
			"name": strings.Join(req.Tags, ","),
		}
		if req.Push {
			eattrs["push"] = "true"
		}
		if host, ok := registryHost(req); ok && insecureRegistryHost(host) {
			eattrs["registry.insecure"] = "true"
		}
		exporters = append(exporters, wire.Exporter{Type: "image", Attrs: eattrs})
	}

	var cache *wire.CacheOptions
	if len(req.CacheFrom) > 0 || len(req.CacheTo) > 0 {
		cache = &wire.CacheOptions{}
		for _, ref := range req.CacheFrom {
			cache.Imports = append(cache.Imports, wire.CacheOptionsEntry{
				Type:  "registry",
				Attrs: map[string]string{"ref": ref},
			})
		}
		for _, ref := range req.CacheTo {
			cache.Exports = append(cache.Exports, wire.CacheOptionsEntry{
				Type:  "registry",
				Attrs: map[string]string{"ref": ref, "mode": "max"},
			})
		}
	}

	return &wire.SolveRequest{
		Ref:           buildRef,
		Session:       sess.ID(),
		Frontend:      frontendDockerfile,
		FrontendAttrs: attrs,
		Cache:         cache,
		Exporters:     exporters,
	}
}

// contextRef names the build context source. A local context refers back to
// this session's file-sync mount; a VCS context is the repository URL with
// an optional fragment ref.
func contextRef(req BuildRequest, sess *session.Session) string {
	if req.ContextDir != "" {
		return "input:" + sess.SharedKey() + ":context"
	}
	ref := req.GitURL
	if req.GitRef != "" {
		ref += "#" + req.GitRef
	}
	return ref
}

// registryHost extracts the registry host from the first tag. Tags without
// a registry component push to the default registry.
func registryHost(req BuildRequest) (string, bool) {
	if len(req.Tags) == 0 {
		return "", false
	}
	first, _, found := strings.Cut(req.Tags[0], "/")
	if !found {
		return "", false
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first, true
	}
	return "", false
}

// insecureRegistryHost reports whether host looks like a plain-HTTP LAN
// registry: localhost, a loopback IP, or a single-label hostname. The
// single-label test can misclassify legitimate internal hosts; it matches
// the behavior registries in small setups expect.
func insecureRegistryHost(host string) bool {
	h := host
	if hp, _, err := net.SplitHostPort(host); err == nil {
		h = hp
	}
	if h == "localhost" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback()
	}
	return !strings.Contains(h, ".")
}
