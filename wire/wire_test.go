package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		pkt  Packet
	}{
		{
			name: "stat",
			pkt: Packet{
				Type: PacketStat,
				ID:   7,
				Stat: &Stat{
					Path:    "src/a.txt",
					Mode:    0o100644,
					UID:     1000,
					GID:     1000,
					Size:    3,
					ModTime: 1712000000000000000,
				},
			},
		},
		{
			name: "stat with linkname and xattrs",
			pkt: Packet{
				Type: PacketStat,
				ID:   2,
				Stat: &Stat{
					Path:     "link",
					Mode:     0o120777,
					Linkname: "target",
					Xattrs:   map[string][]byte{"user.note": []byte("x")},
				},
			},
		},
		{
			name: "req",
			pkt:  Packet{Type: PacketReq, ID: 1},
		},
		{
			name: "data",
			pkt:  Packet{Type: PacketData, ID: 1, Data: []byte("FROM scratch\n")},
		},
		{
			name: "data eof",
			pkt:  Packet{Type: PacketData, ID: 1},
		},
		{
			name: "fin",
			pkt:  Packet{Type: PacketFin},
		},
		{
			name: "err",
			pkt:  Packet{Type: PacketErr, Data: []byte("open /x: permission denied")},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.pkt.Marshal()
			require.NoError(t, err)
			var got Packet
			require.NoError(t, got.Unmarshal(b))
			assert.Equal(t, tc.pkt, got)
		})
	}
}

func TestTerminatorStatEncodesEmpty(t *testing.T) {
	// the listing terminator is all defaults with no stat submessage, which
	// is the empty proto3 message on the wire
	b, err := (&Packet{Type: PacketStat}).Marshal()
	require.NoError(t, err)
	assert.Empty(t, b)

	var got Packet
	require.NoError(t, got.Unmarshal(nil))
	assert.Equal(t, PacketStat, got.Type)
	assert.Nil(t, got.Stat)
}

func TestBytesMessageRoundTrip(t *testing.T) {
	m := BytesMessage{Data: []byte{0, 1, 2, 0xff}}
	b, err := m.Marshal()
	require.NoError(t, err)
	var got BytesMessage
	require.NoError(t, got.Unmarshal(b))
	assert.Equal(t, m, got)
}

func TestSolveRequestRoundTrip(t *testing.T) {
	req := SolveRequest{
		Ref:      "build-1234",
		Session:  "sess-1",
		Frontend: "dockerfile.v0",
		FrontendAttrs: map[string]string{
			"context":        "input:session-1:context",
			"build-arg:GOOS": "linux",
			"target":         "final",
		},
		Cache: &CacheOptions{
			Imports: []CacheOptionsEntry{{
				Type:  "registry",
				Attrs: map[string]string{"ref": "reg/app:cache"},
			}},
			Exports: []CacheOptionsEntry{{
				Type:  "registry",
				Attrs: map[string]string{"ref": "reg/app:cache", "mode": "max"},
			}},
		},
		Entitlements: []string{"network.host"},
		Internal:     true,
		Exporters: []Exporter{{
			Type:  "image",
			Attrs: map[string]string{"name": "reg/app:latest", "push": "true"},
		}},
	}
	b, err := req.Marshal()
	require.NoError(t, err)
	var got SolveRequest
	require.NoError(t, got.Unmarshal(b))
	assert.Equal(t, req, got)
}

func TestAuthMessagesRoundTrip(t *testing.T) {
	ftr := FetchTokenRequest{
		ClientID: "gantry",
		Host:     "ghcr.io",
		Realm:    "https://ghcr.io/token",
		Service:  "ghcr.io",
		Scopes:   []string{"repository:a/b:pull", "repository:a/b:push"},
	}
	b, err := ftr.Marshal()
	require.NoError(t, err)
	var gotFTR FetchTokenRequest
	require.NoError(t, gotFTR.Unmarshal(b))
	assert.Equal(t, ftr, gotFTR)

	cr := CredentialsResponse{Username: "builder", Secret: "hunter2"}
	b, err = cr.Marshal()
	require.NoError(t, err)
	var gotCR CredentialsResponse
	require.NoError(t, gotCR.Unmarshal(b))
	assert.Equal(t, cr, gotCR)

	gsr := GetSecretRequest{ID: "npm-token", Annotations: map[string]string{"k": "v"}}
	b, err = gsr.Marshal()
	require.NoError(t, err)
	var gotGSR GetSecretRequest
	require.NoError(t, gotGSR.Unmarshal(b))
	assert.Equal(t, gsr, gotGSR)
}

func TestHealthCheckResponseServing(t *testing.T) {
	b, err := (&HealthCheckResponse{Status: ServingStatusServing}).Marshal()
	require.NoError(t, err)
	// field 1 varint, value 1
	assert.Equal(t, []byte{0x08, 0x01}, b)
}

func TestCodec(t *testing.T) {
	assert.Equal(t, "proto", Codec{}.Name())

	msg := &BytesMessage{Data: []byte("hi")}
	b, err := Codec{}.Marshal(msg)
	require.NoError(t, err)
	var got BytesMessage
	require.NoError(t, Codec{}.Unmarshal(b, &got))
	assert.Equal(t, msg.Data, got.Data)

	_, err = Codec{}.Marshal(struct{}{})
	assert.Error(t, err)
	assert.Error(t, Codec{}.Unmarshal(nil, struct{}{}))
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	// field 15 (unknown) followed by field 1
	b := []byte{0x7a, 0x01, 0x00, 0x0a, 0x02, 'h', 'i'}
	var m BytesMessage
	require.NoError(t, m.Unmarshal(b))
	assert.Equal(t, []byte("hi"), m.Data)
}
