package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	KindNotFound     Kind = "NotFound"
	KindConflict     Kind = "Conflict"
	KindForbidden    Kind = "Forbidden"
	KindInvalidState Kind = "InvalidState"
	KindValidation   Kind = "ValidationError"
	KindInternal     Kind = "Internal"
)

// Sentinels for errors.Is matching on kind only.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrInternal     = &Error{Kind: KindInternal}
)

// RowError points at a single rejected input row (feed line or request field).
type RowError struct {
	Sheet  string `json:"sheet,omitempty"`
	Line   int    `json:"line,omitempty"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

func (r RowError) String() string {
	var b strings.Builder
	if r.Sheet != "" {
		b.WriteString(r.Sheet)
		if r.Line > 0 {
			fmt.Fprintf(&b, ":%d", r.Line)
		}
		b.WriteString(": ")
	}
	if r.Key != "" {
		b.WriteString(r.Key)
		b.WriteString(": ")
	}
	b.WriteString(r.Reason)
	return b.String()
}

// Error is the typed failure surfaced by every service operation.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Rows   []RowError
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Rows) > 0 {
		fmt.Fprintf(&b, " (%d rejected rows)", len(e.Rows))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels above, so errors.Is(err, ErrNotFound) works for
// every NotFound error regardless of op and reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, op, format string, args ...any) *Error {
	reason := format
	if len(args) > 0 {
		reason = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Reason: reason}
}

func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return newError(KindConflict, op, format, args...)
}

func Forbidden(op, format string, args ...any) *Error {
	return newError(KindForbidden, op, format, args...)
}

func InvalidState(op, format string, args ...any) *Error {
	return newError(KindInvalidState, op, format, args...)
}

func Validation(op, format string, args ...any) *Error {
	return newError(KindValidation, op, format, args...)
}

// ValidationRows builds a ValidationError carrying every rejected row.
func ValidationRows(op, reason string, rows []RowError) *Error {
	return &Error{Kind: KindValidation, Op: op, Reason: reason, Rows: rows}
}

// Internal wraps an unexpected storage or infrastructure failure. The wrapped
// error is kept for logs; callers only see the reason.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Reason: "internal error", Err: err}
}

// KindOf reports the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
