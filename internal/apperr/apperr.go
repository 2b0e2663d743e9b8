// Package apperr classifies failures crossing component boundaries.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindUpstream
	KindInvalidResponse
	KindNotFound
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindUpstream:
		return "upstream"
	case KindInvalidResponse:
		return "invalid_response"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the operation that failed.
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

// Is matches another *Error by Kind so callers can test errors.Is(err, apperr.NotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	Auth            = &Error{Kind: KindAuth}
	Upstream        = &Error{Kind: KindUpstream}
	InvalidResponse = &Error{Kind: KindInvalidResponse}
	NotFound        = &Error{Kind: KindNotFound}
	Internal        = &Error{Kind: KindInternal}
)

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost Kind found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
