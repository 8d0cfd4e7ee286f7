package services

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure. Controllers map kinds to HTTP statuses.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindSelection          Kind = "SELECTION_ERROR"
	KindUpstream           Kind = "UPSTREAM_ERROR"
	KindConsistencyWarning Kind = "CONSISTENCY_WARNING"
	KindNotYetAnalyzed     Kind = "NOT_YET_ANALYZED"
	KindConflict           Kind = "CONFLICT"
	KindForbidden          Kind = "FORBIDDEN"
	KindIngestion          Kind = "INGESTION_ERROR"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// Error is returned by the workflow services.
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

func newError(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func wrapError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
