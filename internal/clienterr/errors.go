// Package clienterr defines the error taxonomy returned across the
// holoclient API boundary.
package clienterr

import (
	"errors"
	"fmt"
)

// Kind categorizes a client error.
type Kind string

const (
	// KindConnection indicates the socket could not be opened, was closed,
	// or dropped while a call was pending.
	KindConnection Kind = "CONNECTION"

	// KindSigning indicates a zome call could not be signed.
	KindSigning Kind = "SIGNING"

	// KindPrecondition indicates an operation was rejected locally before
	// any request was sent.
	KindPrecondition Kind = "PRECONDITION"

	// KindRemote indicates the conductor answered with a structured error.
	KindRemote Kind = "REMOTE"

	// KindTimeout indicates no response arrived before the deadline.
	KindTimeout Kind = "TIMEOUT"

	// KindCanceled indicates the caller abandoned the call.
	KindCanceled Kind = "CANCELED"
)

// Reason codes for non-remote errors. Remote errors carry the conductor's
// own error type in Code.
const (
	CodeDialFailed     = "dial_failed"
	CodeClosed         = "closed"
	CodeConnectionLost = "connection_lost"
	CodeNoCredentials  = "no_credentials"
	CodeUnauthorized   = "unauthorized"
	CodeExpired        = "expired"
	CodeBadSignature   = "bad_signature"
	CodeUnsigned       = "unsigned"
	CodeCellNotFound   = "cell_not_found"
	CodeIllegalState   = "illegal_state"
	CodeInvalidRequest = "invalid_request"
	// Remote-kind codes for responses the client could not accept.
	CodeUnexpectedResponse = "unexpected_response"
	CodeInvalidResponse    = "invalid_response"
)

// Error is the single error type returned by holoclient operations.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the operation that failed, e.g. "enable_clone_cell".
	Op string

	// Code refines Kind. For KindRemote it is the conductor error type.
	Code string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Code != "":
		return fmt.Sprintf("%s: %s: %s (%s)", e.Kind, e.Op, msg, e.Code)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	case e.Code != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, e.Code)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithOp returns a copy of e attributed to op. An existing Op is kept.
func (e *Error) WithOp(op string) *Error {
	c := *e
	if c.Op == "" {
		c.Op = op
	}
	return &c
}

func kindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// KindOf returns the kind of err, or "" when err is not a client error.
func KindOf(err error) Kind {
	k, _ := kindOf(err)
	return k
}

// CodeOf returns the code of err, or "" when err is not a client error.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsConnection returns true if err is a connection error.
func IsConnection(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConnection
}

// IsSigning returns true if err is a signing error.
func IsSigning(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindSigning
}

// IsPrecondition returns true if err is a precondition error.
func IsPrecondition(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPrecondition
}

// IsRemote returns true if err is a conductor error.
func IsRemote(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRemote
}

// IsTimeout returns true if err is a timeout.
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsCanceled returns true if err is a caller cancellation.
func IsCanceled(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindCanceled
}

// Connection creates a connection error.
func Connection(code string, err error) *Error {
	return &Error{Kind: KindConnection, Code: code, Err: err}
}

// Signing creates a signing error.
func Signing(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindSigning, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Precondition creates a precondition error.
func Precondition(op, code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Remote creates an error carrying the conductor's error type and message
// verbatim.
func Remote(op, remoteType, message string) *Error {
	return &Error{Kind: KindRemote, Op: op, Code: remoteType, Message: message}
}

// Timeout creates a timeout error.
func Timeout(op string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: "no response before deadline", Err: err}
}

// Canceled creates a cancellation error.
func Canceled(op string, err error) *Error {
	return &Error{Kind: KindCanceled, Op: op, Message: "call canceled by caller", Err: err}
}
