// Package failure classifies errors from the Incident and Conversational
// APIs so callers can pick the user-facing recovery without inspecting
// transport details.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork: the remote could not be reached.
	KindNetwork
	// KindProtocol: a response arrived but was not the expected JSON shape.
	KindProtocol
	// KindValidation: the client refused to send incomplete data.
	KindValidation
	// KindConflict: the backend rejected the request on business grounds
	// (duplicate incident, bad login key).
	KindConflict
	// KindRemote: the backend answered with a well-formed error body.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Retryable reports whether resending the same request may succeed.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindProtocol || k == KindRemote
}

type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) FailureKind() Kind { return e.Kind }

func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func Protocol(op string, status int, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Status: status, Err: err}
}

func Remote(op string, status int, message string) *Error {
	return &Error{Kind: KindRemote, Op: op, Status: status, Message: message}
}

func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Kinded is implemented by domain errors that carry extra context but still
// belong to one taxonomy bucket.
type Kinded interface {
	error
	FailureKind() Kind
}

// KindOf returns the first kind found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
