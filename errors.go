package main

import (
	"errors"
	"fmt"
)

// ErrRewriteFailed matches every *RewriteError via errors.Is.
var ErrRewriteFailed = errors.New("rewrite failed")

// RewriteErrorKind categorizes a failed rewrite.
type RewriteErrorKind string

const (
	// ErrKindSchemaMismatch: a targeted table or column does not exist.
	ErrKindSchemaMismatch RewriteErrorKind = "SCHEMA_MISMATCH"
	// ErrKindStorageFailure: open, read, write, commit or vacuum failed.
	ErrKindStorageFailure RewriteErrorKind = "STORAGE_FAILURE"
	// ErrKindInvalidSpec: a column spec is malformed, whatever the schema.
	ErrKindInvalidSpec RewriteErrorKind = "INVALID_SPEC"
)

// RewriteError reports why a rewrite failed. When it is returned, nothing
// from the rewrite transaction is visible in the database, except for a
// failed post-commit vacuum (Committed is then true).
type RewriteError struct {
	Kind      RewriteErrorKind
	Table     string
	Column    string
	Op        string // what was being done, e.g. "commit", "open", "statement 3"
	Committed bool
	Cause     error
}

func (e *RewriteError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrRewriteFailed, e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	switch {
	case e.Table != "" && e.Column != "":
		msg += fmt.Sprintf(" (%s.%s)", e.Table, e.Column)
	case e.Table != "":
		msg += fmt.Sprintf(" (%s)", e.Table)
	}
	if e.Committed {
		msg += " [changes already committed]"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *RewriteError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrRewriteFailed) true for every RewriteError.
func (e *RewriteError) Is(target error) bool {
	return target == ErrRewriteFailed
}

func schemaMismatch(spec ColumnSpec, cause error) *RewriteError {
	return &RewriteError{
		Kind:   ErrKindSchemaMismatch,
		Table:  spec.Table,
		Column: spec.Column,
		Op:     "resolve",
		Cause:  cause,
	}
}

func invalidSpec(spec ColumnSpec, cause error) *RewriteError {
	return &RewriteError{
		Kind:   ErrKindInvalidSpec,
		Table:  spec.Table,
		Column: spec.Column,
		Op:     "validate spec",
		Cause:  cause,
	}
}

func storageFailure(op string, cause error) *RewriteError {
	return &RewriteError{Kind: ErrKindStorageFailure, Op: op, Cause: cause}
}

// IsSchemaMismatch reports whether err is a rewrite failure caused by a
// missing table or column.
func IsSchemaMismatch(err error) bool {
	var re *RewriteError
	return errors.As(err, &re) && re.Kind == ErrKindSchemaMismatch
}

// IsStorageFailure reports whether err is a rewrite failure caused by the
// storage engine.
func IsStorageFailure(err error) bool {
	var re *RewriteError
	return errors.As(err, &re) && re.Kind == ErrKindStorageFailure
}

// IsInvalidSpec reports whether err is a rewrite refused because a column
// spec is malformed.
func IsInvalidSpec(err error) bool {
	var re *RewriteError
	return errors.As(err, &re) && re.Kind == ErrKindInvalidSpec
}

// IsCommitted reports whether err came after the rewrite transaction had
// already been committed.
func IsCommitted(err error) bool {
	var re *RewriteError
	return errors.As(err, &re) && re.Committed
}
