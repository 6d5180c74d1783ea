package gantry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-build/gantry/auth"
	"github.com/gantry-build/gantry/session"
)

func TestNewSolveRequestLocalContext(t *testing.T) {
	sess := session.NewSession("test")
	req := BuildRequest{
		ContextDir:     ".",
		DockerfilePath: "build/Dockerfile",
		BuildArgs:      map[string]string{"VERSION": "1.2.3"},
		Target:         "final",
		Platforms:      []string{"linux/amd64", "linux/arm64"},
		Tags:           []string{"registry.example.com/app:latest"},
		Push:           true,
		CacheFrom:      []string{"registry.example.com/app:cache"},
		CacheTo:        []string{"registry.example.com/app:cache"},
		NoCache:        true,
		Pull:           true,
	}
	sr := newSolveRequest(req, sess, "build-1")

	assert.Equal(t, "build-1", sr.Ref)
	assert.Equal(t, sess.ID(), sr.Session)
	assert.Equal(t, "dockerfile.v0", sr.Frontend)

	attrs := sr.FrontendAttrs
	assert.Equal(t, "input:"+sess.SharedKey()+":context", attrs["context"])
	assert.Equal(t, "build/Dockerfile", attrs["filename"])
	assert.Equal(t, "1.2.3", attrs["build-arg:VERSION"])
	assert.Equal(t, "final", attrs["target"])
	assert.Equal(t, "linux/amd64,linux/arm64", attrs["platform"])
	assert.Equal(t, "true", attrs["no-cache"])
	assert.Equal(t, "pull", attrs["image-resolve-mode"])

	require.Len(t, sr.Exporters, 1)
	assert.Equal(t, "image", sr.Exporters[0].Type)
	assert.Equal(t, "registry.example.com/app:latest", sr.Exporters[0].Attrs["name"])
	assert.Equal(t, "true", sr.Exporters[0].Attrs["push"])
	assert.NotContains(t, sr.Exporters[0].Attrs, "registry.insecure")

	require.NotNil(t, sr.Cache)
	require.Len(t, sr.Cache.Imports, 1)
	assert.Equal(t, "registry.example.com/app:cache", sr.Cache.Imports[0].Attrs["ref"])
	require.Len(t, sr.Cache.Exports, 1)
	assert.Equal(t, "max", sr.Cache.Exports[0].Attrs["mode"])
}

func TestNewSolveRequestGitContext(t *testing.T) {
	sess := session.NewSession("test")
	sr := newSolveRequest(BuildRequest{
		GitURL: "https://github.com/example/app.git",
		GitRef: "v2.0.0",
	}, sess, "build-2")

	assert.Equal(t, "https://github.com/example/app.git#v2.0.0", sr.FrontendAttrs["context"])
	assert.Empty(t, sr.Exporters)
	assert.Nil(t, sr.Cache)
}

func TestInsecureRegistryExporterAttr(t *testing.T) {
	sess := session.NewSession("test")
	for _, tag := range []string{
		"localhost:5000/app:latest",
		"127.0.0.1:5000/app:latest",
		"registry:5000/app:latest",
	} {
		sr := newSolveRequest(BuildRequest{ContextDir: ".", Tags: []string{tag}}, sess, "b")
		require.Len(t, sr.Exporters, 1, tag)
		assert.Equal(t, "true", sr.Exporters[0].Attrs["registry.insecure"], tag)
	}
	for _, tag := range []string{
		"ghcr.io/example/app:latest",
		"app:latest",
		"example/app:latest",
	} {
		sr := newSolveRequest(BuildRequest{ContextDir: ".", Tags: []string{tag}}, sess, "b")
		require.Len(t, sr.Exporters, 1, tag)
		assert.NotContains(t, sr.Exporters[0].Attrs, "registry.insecure", tag)
	}
}

func TestInsecureRegistryHost(t *testing.T) {
	insecure := []string{"localhost", "localhost:5000", "127.0.0.1", "127.0.0.1:5000", "registry", "registry:5000"}
	for _, host := range insecure {
		assert.True(t, insecureRegistryHost(host), host)
	}
	secure := []string{"docker.io", "ghcr.io", "registry.example.com:5000", "8.8.8.8"}
	for _, host := range secure {
		assert.False(t, insecureRegistryHost(host), host)
	}
}

func TestCredentialTableMergesGitToken(t *testing.T) {
	req := BuildRequest{
		GitURL:   "https://github.com/example/private.git",
		GitToken: "ghp_secret",
		Credentials: map[string]auth.Credential{
			"ghcr.io": {Username: "bot", Secret: "s"},
		},
	}
	creds := req.credentialTable()
	assert.Equal(t, auth.Credential{Username: "bot", Secret: "s"}, creds["ghcr.io"])
	assert.Equal(t, auth.Credential{Username: "x-access-token", Secret: "ghp_secret"}, creds["github.com"])
}

func TestBuildRequestValidate(t *testing.T) {
	assert.Error(t, (&BuildRequest{}).validate())
	assert.Error(t, (&BuildRequest{ContextDir: ".", GitURL: "https://x/y.git"}).validate())
	assert.NoError(t, (&BuildRequest{ContextDir: "."}).validate())
	assert.NoError(t, (&BuildRequest{GitURL: "https://x/y.git"}).validate())
}
