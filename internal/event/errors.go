package event

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the ledger and coordinator can return.
// Handlers map kinds to HTTP statuses in exactly one place (http_utils.go).
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalid
	KindNotFound
	KindForbidden
	KindEventEnded
	KindAlreadyVoted
	KindNotVoted
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindEventEnded:
		return "event_ended"
	case KindAlreadyVoted:
		return "already_voted"
	case KindNotVoted:
		return "not_voted"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error is the typed result of a failed operation. No error escapes the
// ledger or coordinator without a kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// KindOf extracts the kind from err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func errNotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func errForbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func errEnded() *Error {
	return &Error{Kind: KindEventEnded, Msg: "event has ended"}
}
