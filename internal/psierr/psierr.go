// Package psierr defines the error taxonomy from spec.md §7, so every
// layer of the protocol (hashing, crypto, transport) can surface failures
// under one of the five documented kinds.
package psierr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds from spec.md §7.
type Kind string

const (
	// ParameterMismatch: client's Parameters disagree with the server's.
	ParameterMismatch Kind = "parameter_mismatch"
	// CapacityExceeded: SimpleHash/CuckooHash ran out of room for the input size.
	CapacityExceeded Kind = "capacity_exceeded"
	// CryptoFailure: off-curve point, BFV deserialization error, undefined inverse.
	CryptoFailure Kind = "crypto_failure"
	// TransportFailure: network/HTTP errors.
	TransportFailure Kind = "transport_failure"
	// ProtocolViolation: malformed JSON, wrong shapes, out-of-range integers.
	ProtocolViolation Kind = "protocol_violation"
)

// Error wraps an underlying cause with its protocol-level Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a psierr.Error for operation op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *psierr.Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
