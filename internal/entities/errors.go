package entities

import (
	"errors"
	"fmt"
)

// Error codes understood by the HTTP layer.
const (
	EInvalid         = "invalid"
	EUnauthorized    = "unauthorized"
	EForbidden       = "forbidden"
	ENotFound        = "not_found"
	EConflict        = "conflict"
	EPaymentRequired = "payment_required"
	EInternal        = "internal"
)

// Error is a domain error carrying a code, a user-facing message and an optional cause.
type Error struct {
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so that errors.Is(err, ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Msg == "" || t.Msg == e.Msg)
}

var (
	ErrNotFound     = &Error{Code: ENotFound}
	ErrForbidden    = &Error{Code: EForbidden}
	ErrUnauthorized = &Error{Code: EUnauthorized}
	ErrConflict     = &Error{Code: EConflict}
)

func NotFound(what string) error {
	return &Error{Code: ENotFound, Msg: what + " not found"}
}

func Invalid(msg string) error {
	return &Error{Code: EInvalid, Msg: msg}
}

func Forbidden(msg string) error {
	return &Error{Code: EForbidden, Msg: msg}
}

func Conflict(msg string) error {
	return &Error{Code: EConflict, Msg: msg}
}

// ErrorCode returns the code of the first *Error in err's chain, or EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EInternal
}

// ErrorMessage returns the user-facing message for err. Internal errors never leak detail.
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != EInternal && e.Msg != "" {
		return e.Msg
	}
	return "internal server error"
}
