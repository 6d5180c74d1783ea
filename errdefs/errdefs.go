// Package errdefs classifies the failures surfaced by the build API so that
// callers can tell retryable transport trouble apart from protocol bugs and
// local resource problems.
package errdefs

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the failure category of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport covers outer stream I/O failures and inner HTTP/2
	// transport errors. Transient; callers may retry.
	KindTransport
	// KindProtocol covers malformed gRPC framing, missing trailers,
	// unexpected packet kinds and other peer misbehavior.
	KindProtocol
	// KindResource covers local filesystem failures.
	KindResource
	// KindCancelled means the caller or the outer stream terminated the
	// session.
	KindCancelled
	// KindUnavailable means the outer stream could not be established.
	KindUnavailable
	// KindUnimplemented means an inner path is not served.
	KindUnimplemented
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	case KindCancelled:
		return "cancelled"
	case KindUnavailable:
		return "unavailable"
	case KindUnimplemented:
		return "unimplemented"
	}
	return "unknown"
}

// Error tags an underlying error with a Kind. It supports errors.As and
// errors.Is chains.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WithKind wraps err with the given kind. Returns nil for a nil err. An
// already-kinded error keeps its original kind.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// Transport tags err as KindTransport.
func Transport(err error) error { return WithKind(KindTransport, err) }

// Protocol tags err as KindProtocol.
func Protocol(err error) error { return WithKind(KindProtocol, err) }

// Resource tags err as KindResource.
func Resource(err error) error { return WithKind(KindResource, err) }

// Cancelled tags err as KindCancelled.
func Cancelled(err error) error { return WithKind(KindCancelled, err) }

// Unavailable tags err as KindUnavailable.
func Unavailable(err error) error { return WithKind(KindUnavailable, err) }

// GetKind reports the kind of err, classifying untagged context and gRPC
// status errors by their nature.
func GetKind(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable:
			return KindUnavailable
		case codes.Unimplemented:
			return KindUnimplemented
		case codes.Canceled, codes.DeadlineExceeded:
			return KindCancelled
		}
	}
	return KindUnknown
}
