// Package apperr gives every stage handler a structured error type
// tagged with one of three kinds, so the stage runner can
// switch on Kind to decide ack vs. no-ack without string-matching error
// messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the three error kinds a stage handler can raise, plus
// the panic/bug kind the runner assigns itself on recover().
type Kind string

const (
	// KindTransient covers broker/storage/IMAP/LLM/embedding timeouts:
	// do not ack, the broker redelivers.
	KindTransient Kind = "transient"
	// KindMalformed covers unparseable MIME or invalid LLM JSON: ack
	// and drop, not retryable.
	KindMalformed Kind = "malformed"
	// KindPermanent covers schema or auth errors: log at error, ack,
	// do not crash the worker.
	KindPermanent Kind = "permanent"
	// KindPanic is assigned by the stage runner's recover() around a
	// handler; the event is left un-acked.
	KindPanic Kind = "panic"
)

// PipelineError is the structured error every stage handler returns.
type PipelineError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Transient tags err as a retryable I/O failure.
func Transient(op string, err error) *PipelineError {
	return &PipelineError{Kind: KindTransient, Op: op, Err: err}
}

// Malformed tags err as unretryable bad input.
func Malformed(op string, err error) *PipelineError {
	return &PipelineError{Kind: KindMalformed, Op: op, Err: err}
}

// Permanent tags err as an operator-must-intervene failure.
func Permanent(op string, err error) *PipelineError {
	return &PipelineError{Kind: KindPermanent, Op: op, Err: err}
}

// AsPipelineError unwraps err looking for a *PipelineError, defaulting
// an unrecognized error to KindPermanent (fail safe: ack and surface,
// rather than spin a pending entry indefinitely on an error nobody
// tagged).
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{Kind: KindPermanent, Op: "unknown", Err: err}
}

// ShouldAck reports whether the broker input should be acked given
// this error's kind. Only transient and panic leave the entry un-acked.
func (k Kind) ShouldAck() bool {
	return k != KindTransient && k != KindPanic
}
