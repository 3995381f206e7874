package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and for the HTTP status it maps to.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindIneligible  Kind = "ineligible"
	KindLedgerWrite Kind = "ledger_write"
	KindInternal    Kind = "internal"
)

// Error is the single error type returned across package boundaries.
// Reasons carries the itemized list for ineligible outcomes.
type Error struct {
	Kind    Kind
	Msg     string
	Reasons []string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// ValidationReasons is a validation error carrying one reason per offending field.
func ValidationReasons(msg string, reasons []string) error {
	return &Error{Kind: KindValidation, Msg: msg, Reasons: reasons}
}

func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", entity, id)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Ineligible(msg string, reasons []string) error {
	return &Error{Kind: KindIneligible, Msg: msg, Reasons: reasons}
}

// LedgerWrite wraps a failed or timed-out ledger submission. The off-chain
// record for the operation is never written when this is returned.
func LedgerWrite(op string, err error) error {
	return &Error{Kind: KindLedgerWrite, Msg: "ledger " + op + " failed", Err: err}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Msg: op, Err: err}
}

// KindOf reports the Kind of err, treating anything unclassified as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonsOf returns the itemized reasons attached to err, if any.
func ReasonsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reasons
	}
	return nil
}

// IsKind reports whether err is a domain error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
