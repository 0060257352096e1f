// Package apperr defines the error taxonomy shared by the pipeline stages.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Kind classifies an error for the orchestrator's propagation policy.
type Kind string

// Error kinds. Only KindValidation and KindNotFound are fatal.
const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindProvider   Kind = "provider"
	KindEmbedding  Kind = "embedding"
	KindUnknown    Kind = "unknown"
	KindCancelled  Kind = "cancelled"
)

// Error is a classified error. Op names the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the kind must halt the pipeline.
func (k Kind) Fatal() bool {
	return k == KindValidation || k == KindNotFound
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation wraps err as a validation failure.
func Validation(op string, err error) *Error { return newErr(KindValidation, op, err) }

// NotFound wraps err as a missing-input failure.
func NotFound(op string, err error) *Error {
	if err == nil {
		err = ErrNotFound
	}
	return newErr(KindNotFound, op, err)
}

// Provider wraps err as an AI backend failure.
func Provider(op string, err error) *Error { return newErr(KindProvider, op, err) }

// Embedding wraps err as a similarity backend failure.
func Embedding(op string, err error) *Error { return newErr(KindEmbedding, op, err) }

// Unknown wraps an unexpected defect.
func Unknown(op string, err error) *Error { return newErr(KindUnknown, op, err) }

// KindOf returns the kind of err. Context cancellation maps to KindCancelled
// and unclassified errors to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindUnknown
}
