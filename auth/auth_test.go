package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gantry-build/gantry/wire"
)

func credentialsFor(t *testing.T, p *Provider, host string) *wire.CredentialsResponse {
	t.Helper()
	payload, err := (&wire.CredentialsRequest{Host: host}).Marshal()
	require.NoError(t, err)
	msg, err := p.credentialsHandler(context.Background(), payload)
	require.NoError(t, err)
	resp, ok := msg.(*wire.CredentialsResponse)
	require.True(t, ok)
	return resp
}

func TestCredentialsLookup(t *testing.T) {
	p := NewProvider(map[string]Credential{
		"ghcr.io":   {Username: "bot", Secret: "s3cr3t"},
		"docker.io": {Username: "hubuser", Secret: "hubpass"},
	})

	resp := credentialsFor(t, p, "ghcr.io")
	assert.Equal(t, "bot", resp.Username)
	assert.Equal(t, "s3cr3t", resp.Secret)
}

func TestCredentialsDockerHubAliases(t *testing.T) {
	p := NewProvider(map[string]Credential{
		"docker.io": {Username: "hubuser", Secret: "hubpass"},
	})
	for _, host := range []string{"docker.io", "registry-1.docker.io", "index.docker.io"} {
		resp := credentialsFor(t, p, host)
		assert.Equal(t, "hubuser", resp.Username, host)
	}
}

// A miss yields empty credentials with success; the daemon then proceeds
// anonymously.
func TestCredentialsMissIsAnonymous(t *testing.T) {
	p := NewProvider(nil)
	resp := credentialsFor(t, p, "registry.example.com")
	assert.Empty(t, resp.Username)
	assert.Empty(t, resp.Secret)
}

func TestFetchTokenIsEmpty(t *testing.T) {
	p := NewProvider(nil)
	payload, err := (&wire.FetchTokenRequest{Host: "ghcr.io"}).Marshal()
	require.NoError(t, err)
	msg, err := p.fetchTokenHandler(context.Background(), payload)
	require.NoError(t, err)
	resp, ok := msg.(*wire.FetchTokenResponse)
	require.True(t, ok)
	assert.Empty(t, resp.Token)
}

func TestGetTokenAuthorityUnimplemented(t *testing.T) {
	p := NewProvider(nil)
	_, err := p.getTokenAuthorityHandler(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestProviderCopiesTable(t *testing.T) {
	table := map[string]Credential{"ghcr.io": {Username: "bot"}}
	p := NewProvider(table)
	table["ghcr.io"] = Credential{Username: "evil"}
	resp := credentialsFor(t, p, "ghcr.io")
	assert.Equal(t, "bot", resp.Username)
}
