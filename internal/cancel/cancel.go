// Package cancel provides the cooperative cancellation signal polled by the sync pipeline.
// Nothing here interrupts work in flight: a cancellation is only observed at the checkpoints
// that call Check.
package cancel

import (
	"context"

	"go.uber.org/atomic"

	"github.com/kelsos/ledger-sync/internal/syncerr"
)

// Predicate reports whether the caller asked to stop. A nil Predicate never cancels.
type Predicate func() bool

// Requested evaluates the predicate, treating nil as "keep going"
func (p Predicate) Requested() bool {
	return p != nil && p()
}

// Check returns a cancellation error for the chain when the predicate is set
func (p Predicate) Check(chainID string) error {
	if p.Requested() {
		return syncerr.Cancelled(chainID)
	}
	return nil
}

// Token is a settable cancellation flag safe for concurrent use
type Token struct {
	cancelled atomic.Bool
}

func NewToken() *Token {
	return &Token{}
}

func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Predicate exposes the token as a polled predicate
func (t *Token) Predicate() Predicate {
	return t.Cancelled
}

// FromContext turns context cancellation into a polled predicate
func FromContext(ctx context.Context) Predicate {
	return func() bool {
		return ctx.Err() != nil
	}
}

// Any combines predicates; the result is cancelled once any of them is
func Any(predicates ...Predicate) Predicate {
	return func() bool {
		for _, p := range predicates {
			if p.Requested() {
				return true
			}
		}
		return false
	}
}
