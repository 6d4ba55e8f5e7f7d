// Package mcperrors implements the error taxonomy used across this module's
// components, so callers can branch on errors.Is/errors.As instead of
// matching error strings.
package mcperrors

import (
	"errors"
	"fmt"
)

// Kind classifies the broad cause of an error, matching the taxonomy
// components use to decide whether to surface an error to a caller or
// swallow it and keep running.
type Kind string

const (
	KindIO             Kind = "io"
	KindSpawn          Kind = "spawn"
	KindParse          Kind = "parse"
	KindNotFound       Kind = "not_found"
	KindAlreadyProxied Kind = "already_proxied"
	KindCancelled      Kind = "cancelled"
	KindBackend        Kind = "backend"
)

// Error wraps an underlying cause with a Kind so callers can branch on the
// taxonomy without parsing messages.
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

// New wraps err with a Kind and the operation that produced it. If err is
// nil, New returns nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
