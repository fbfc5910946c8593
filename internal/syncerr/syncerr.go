// Package syncerr classifies the failures of the synchronization pipeline.
//
// Per-chain operational failures (fetch, connection, enrichment) become data on the chain
// snapshot. Cancellation is a control-flow signal and always travels as ErrCancelled.
// Validation failures are rejected before any work starts. Anything else is a defect and is
// wrapped with Unexpected so it carries a stack trace up to the caller.
package syncerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindFetch
	KindConnection
	KindEnrichment
	KindValidation
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch failed"
	case KindConnection:
		return "connection failed"
	case KindEnrichment:
		return "enrichment failed"
	case KindValidation:
		return "validation failed"
	case KindCancelled:
		return "cancelled"
	default:
		return "unexpected error"
	}
}

// ErrCancelled is the cancellation signal; match it with errors.Is
var ErrCancelled = &Error{Kind: KindCancelled, Op: "synchronization"}

// Error is a classified pipeline failure
type Error struct {
	Kind  Kind
	Chain string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Chain != "" {
		msg = fmt.Sprintf("chain %s: %s", e.Chain, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every cancellation error match ErrCancelled
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t == ErrCancelled && e.Kind == KindCancelled
}

// Description is the user-facing text stored on an ERROR snapshot
func (e *Error) Description() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func New(kind Kind, chain, op string, err error) *Error {
	return &Error{Kind: kind, Chain: chain, Op: op, Err: err}
}

func Fetch(chain string, err error) *Error {
	return New(KindFetch, chain, "fetch addresses", err)
}

func Connection(chain string, err error) *Error {
	return New(KindConnection, chain, "open connection", err)
}

func Enrichment(chain string, err error) *Error {
	return New(KindEnrichment, chain, "enrich accounts", err)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, "", "validate", fmt.Errorf(format, args...))
}

// Cancelled returns a cancellation error for a chain; it matches ErrCancelled
func Cancelled(chain string) *Error {
	return New(KindCancelled, chain, "synchronization", nil)
}

// Unexpected wraps an unclassified failure, keeping cancellation and already classified
// errors untouched
func Unexpected(chain string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return New(KindUnexpected, chain, "synchronization", pkgerrors.WithStack(err))
}

// KindOf returns the kind of a classified error, KindUnexpected otherwise
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnexpected
}

// IsCancelled reports whether err carries the cancellation signal
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsOperational reports whether err is a per-chain failure that should become snapshot data
func IsOperational(err error) bool {
	switch KindOf(err) {
	case KindFetch, KindConnection, KindEnrichment:
		return true
	default:
		return false
	}
}
