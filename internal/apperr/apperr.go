// Package apperr defines the error taxonomy shared by the download engine,
// manifest resolver, and auth flow.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure, independent of the message text.
type Kind string

const (
	Transport       Kind = "transport"
	Parse           Kind = "parse"
	InvalidVersion  Kind = "invalid_version"
	NotOwned        Kind = "not_owned"
	CsrfMismatch    Kind = "csrf_mismatch"
	RedirectTimeout Kind = "redirect_timeout"
	NotLoggedIn     Kind = "not_logged_in"
	NoFreePort      Kind = "no_free_port"
	FilesystemIO    Kind = "filesystem_io"
	UrlParse        Kind = "url_parse"
	Aborted         Kind = "aborted"
	Timeout         Kind = "timeout"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// errors.As without parsing message strings.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "authflow.exchange_token"
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap builds an *Error around an existing cause, preserving it for errors.Is/As.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
