// Package errs defines the closed set of error kinds the node
// distinguishes, per the error handling design: Storage,
// InvariantViolation, AuthFailed, NotFound, Cancelled, Backpressure,
// PeerUnreachable, QueryError, Conflict, and Duplicate. Callers use
// errors.As to discriminate.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the node's distinguished error categories.
type Kind string

const (
	KindStorage           Kind = "storage"
	KindInvariantViolation Kind = "invariant_violation"
	KindAuthFailed         Kind = "auth_failed"
	KindNotFound           Kind = "not_found"
	KindCancelled          Kind = "cancelled"
	KindBackpressure       Kind = "backpressure"
	KindPeerUnreachable    Kind = "peer_unreachable"
	KindQueryError         Kind = "query_error"
	KindConflict           Kind = "conflict"
	KindDuplicate          Kind = "duplicate"
)

// Error is the node's typed error wrapper. Code is a short
// machine-readable sub-classification within Kind (e.g. "offset_exhausted").
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is comparison against a bare *Error with only Kind set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}

func new_(kind Kind, code, message string, wrapped error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: wrapped}
}

// Storage reports I/O, corruption, or out-of-space errors.
func Storage(code, message string, wrapped error) *Error {
	return new_(KindStorage, code, message, wrapped)
}

// InvariantViolation reports an irrecoverable offset/lamport conflict
// between peers for one stream. Operator-visible; never poisons other streams.
func InvariantViolation(streamID string, offset uint64) *Error {
	return new_(KindInvariantViolation, "offset_conflict",
		fmt.Sprintf("stream %s offset %d: conflicting bytes from different sources", streamID, offset), nil)
}

// AuthFailed reports a bad signature, expired token, or manifest/domain mismatch.
func AuthFailed(message string) *Error {
	return new_(KindAuthFailed, "", message, nil)
}

// NotFound reports an unknown stream or tag.
func NotFound(message string) *Error {
	return new_(KindNotFound, "", message, nil)
}

// Cancelled reports cooperative cancellation or deadline exceeded.
func Cancelled(message string) *Error {
	return new_(KindCancelled, "", message, nil)
}

// Backpressure reports a temporarily full buffer; the caller may retry with backoff.
func Backpressure(message string) *Error {
	return new_(KindBackpressure, "", message, nil)
}

// PeerUnreachable is replication-layer only; retried internally, never surfaced to publishers.
func PeerUnreachable(peerID, message string) *Error {
	return new_(KindPeerUnreachable, peerID, message, nil)
}

// QueryError reports a plan referencing an undefined tag or incompatible aggregation types.
func QueryError(message string) *Error {
	return new_(KindQueryError, "", message, nil)
}

// ConflictAt reports that append_remote's offset did not match the
// expected next offset for a stream.
func ConflictAt(expectedOffset uint64) *Error {
	return new_(KindConflict, "", fmt.Sprintf("expected next offset %d", expectedOffset), nil)
}

// ExpectedOffset extracts the expected-offset value from a ConflictAt error, if present.
func ExpectedOffset(err error) (uint64, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindConflict {
		return 0, false
	}
	var expected uint64
	if _, scanErr := fmt.Sscanf(e.Message, "expected next offset %d", &expected); scanErr != nil {
		return 0, false
	}
	return expected, true
}

// Duplicate reports that (stream_id, offset) already holds identical bytes.
func Duplicate(streamID string, offset uint64) *Error {
	return new_(KindDuplicate, "", fmt.Sprintf("stream %s offset %d already present", streamID, offset), nil)
}

// Is reports whether err is (or wraps) a node error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
