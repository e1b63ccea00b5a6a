// Package errs defines the error kinds the engine records in its decision
// log. Only PersistenceFailure is ever fatal to a cycle; every other kind
// degrades the affected asset to a hold.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	DataUnavailable     Kind = "DataUnavailable"
	OracleError         Kind = "OracleError"
	ParseError          Kind = "ParseError"
	InvalidBracket      Kind = "InvalidBracket"
	RiskExceeded        Kind = "RiskExceeded"
	RiskMismatch        Kind = "RiskMismatch"
	LeverageOutOfRange  Kind = "LeverageOutOfRange"
	InsufficientBalance Kind = "InsufficientBalance"
	AlreadyOpen         Kind = "AlreadyOpen"
	NoPosition          Kind = "NoPosition"
	Reconciliation      Kind = "Reconciliation"
	PersistenceFailure  Kind = "PersistenceFailure"
)

// Fatal reports whether an error of this kind must abort the cycle.
func (k Kind) Fatal() bool {
	return k == PersistenceFailure
}

// Error attaches a Kind and, optionally, an asset symbol to a cause.
type Error struct {
	Kind  Kind
	Asset string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Asset != "" && e.Err != nil:
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Asset, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Asset != "":
		return fmt.Sprintf("%s [%s]", e.Kind, e.Asset)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, errs.New(errs.ParseError, "", nil))
// works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Asset == "" || t.Asset == e.Asset)
}

func New(kind Kind, asset string, err error) *Error {
	return &Error{Kind: kind, Asset: asset, Err: err}
}

func Newf(kind Kind, asset string, format string, args ...any) *Error {
	return &Error{Kind: kind, Asset: asset, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
