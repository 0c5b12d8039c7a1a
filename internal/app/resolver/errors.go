package resolver

import (
	"context"
	"fmt"
	"net"

	"github.com/cockroachdb/errors"

	"resono/internal/domain/track"
)

// Errors
var (
	// ErrRecoveryExhausted is returned when the retry ledger refuses another
	// recovery attempt for a track.
	ErrRecoveryExhausted = errors.New("stream recovery exhausted")
)

// Kind classifies a resolution failure so the state machine can choose
// between waiting for the network, recovering the stream, and skipping.
type Kind int

const (
	KindUnknown                 Kind = iota // Unclassified failure
	KindNetworkUnavailable                  // No route to the catalog or stream host
	KindStreamExpiredOrRejected             // Stream URL rejected by the remote (bad HTTP)
	KindNoStreamAvailable                   // Catalog has no playable stream for the track
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindStreamExpiredOrRejected:
		return "stream_expired_or_rejected"
	case KindNoStreamAvailable:
		return "no_stream_available"
	default:
		return "unknown"
	}
}

// Error is a classified resolution failure for a specific track.
type Error struct {
	Kind    Kind
	TrackID track.ID
	cause   error
}

// Error implements error.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.TrackID, e.Kind, e.cause)
	}
	return fmt.Sprintf("resolve %s: %s", e.TrackID, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// newError wraps a cause into a classified resolution error.
func newError(kind Kind, id track.ID, cause error) *Error {
	return &Error{Kind: kind, TrackID: id, cause: cause}
}

// KindOf extracts the classification from an error chain.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// HTTPError reports a bad HTTP status from the catalog or stream host.
// Catalog client implementations return it so failures can be classified.
type HTTPError struct {
	Status int
}

// Error implements error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

// ClassifyHTTPStatus maps an HTTP status code onto a failure kind.
func ClassifyHTTPStatus(status int) Kind {
	switch status {
	case 403, 404, 410, 416, 429, 500, 502, 503:
		return KindStreamExpiredOrRejected
	default:
		return KindUnknown
	}
}

// Classify inspects an error chain and returns its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return ClassifyHTTPStatus(he.Status)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetworkUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkUnavailable
	}

	return KindUnknown
}
