package errdefs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindTagging(t *testing.T) {
	base := errors.New("boom")
	err := Protocol(base)
	assert.Equal(t, KindProtocol, GetKind(err))
	assert.ErrorIs(t, err, base)

	// wrapping again keeps the original kind
	assert.Equal(t, KindProtocol, GetKind(Transport(err)))

	// fmt wrapping preserves the tag
	assert.Equal(t, KindProtocol, GetKind(fmt.Errorf("outer: %w", err)))
}

func TestWithKindNil(t *testing.T) {
	assert.Nil(t, WithKind(KindTransport, nil))
}

func TestGetKindClassifiesUntagged(t *testing.T) {
	assert.Equal(t, KindCancelled, GetKind(context.Canceled))
	assert.Equal(t, KindCancelled, GetKind(context.DeadlineExceeded))
	assert.Equal(t, KindUnavailable, GetKind(status.Error(codes.Unavailable, "down")))
	assert.Equal(t, KindUnimplemented, GetKind(status.Error(codes.Unimplemented, "nope")))
	assert.Equal(t, KindCancelled, GetKind(status.Error(codes.Canceled, "stop")))
	assert.Equal(t, KindUnknown, GetKind(errors.New("plain")))
	assert.Equal(t, KindUnknown, GetKind(nil))
}

func TestErrorString(t *testing.T) {
	err := Resource(errors.New("open /x: permission denied"))
	assert.Equal(t, "resource: open /x: permission denied", err.Error())
}
