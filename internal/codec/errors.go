// Package codec implements the V3 market-frame codec: a stateful, session
// oriented binary format for a single-asset order-book feed. It encodes
// websocket JSON frames into compact base64url lines (header once, one
// record per frame thereafter) and decodes them back losslessly.
package codec

import (
	"errors"
	"fmt"
)

// Kind identifies a class of codec failure. Callers that need to dispatch on
// the kind of error (rather than just logging it) should use errors.As to
// recover a *Error and switch on its Kind field.
type Kind string

const (
	// KindTruncatedVarint is raised when a varint decode runs past the end
	// of the buffer before the continuation bit clears.
	KindTruncatedVarint Kind = "truncated_varint"
	// KindVarintOverflow is raised when a varint decode consumes more than
	// ten continuation bytes (shift > 70).
	KindVarintOverflow Kind = "varint_overflow"
	// KindBadStringRef is raised when a pool reference index falls outside
	// [1, next_id).
	KindBadStringRef Kind = "bad_string_ref"
	// KindLiteralOverflow is raised when a pool literal's declared length
	// runs past the end of the buffer.
	KindLiteralOverflow Kind = "literal_overflow"
	// KindUnsupportedVersion is raised when a header's version field is not 3.
	KindUnsupportedVersion Kind = "unsupported_version"
	// KindUnknownEventType is raised when the type-byte's event code (bits
	// 0..2) does not name one of the four known event types.
	KindUnknownEventType Kind = "unknown_event_type"
	// KindInvalidInput is raised on a negative varint encode, a non-object
	// event in a frame, or other caller misuse the wire format cannot carry.
	KindInvalidInput Kind = "invalid_input"
	// KindCompressError is not produced by this package. It names the
	// disposition the external producer (the websocket collaborator) uses
	// when it catches any error from Compress and falls back to storing the
	// raw JSON under an "m" wrapper — see internal/feed and internal/reinflate.
	KindCompressError Kind = "compress_error"
)

// Error is the codec's error type. Op names the failing operation
// (e.g. "DecodeUvarint", "pool.decode", "Compress"); Err, if set, is the
// underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("codec: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == kind
}
