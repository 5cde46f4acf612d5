// Package apperr defines the business error kinds shared by every ledger and
// the order orchestrator, and maps them onto stable response categories.
//
// Each kind is a sentinel. Concrete errors carry a human readable message and
// unwrap to their kind, so callers match with errors.Is and never parse text.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

// Error kinds.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrCouponUnavailable  = errors.New("coupon unavailable")
	ErrNotOwner           = errors.New("not owner")
	ErrInvalidState       = errors.New("invalid state")
)

var kinds = []struct {
	err    error
	code   string
	status int
}{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrInvalidArgument, "BAD_REQUEST", http.StatusBadRequest},
	{ErrInsufficientStock, "INSUFFICIENT_STOCK", http.StatusBadRequest},
	{ErrInsufficientPoints, "INSUFFICIENT_POINTS", http.StatusBadRequest},
	{ErrCouponUnavailable, "COUPON_UNAVAILABLE", http.StatusBadRequest},
	{ErrNotOwner, "NOT_OWNER", http.StatusForbidden},
	{ErrInvalidState, "INVALID_STATE", http.StatusBadRequest},
}

// Error is a business failure of a known kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// New returns an error of the given kind with a fixed message.
func New(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is like New but formats the message.
func Newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity by its key.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Code returns the stable category name of err, or "INTERNAL" when err is
// not a business error.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "INTERNAL"
}

// Status returns the HTTP status that represents err.
func Status(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// IsBusiness reports whether err belongs to one of the known kinds.
func IsBusiness(err error) bool {
	return Code(err) != "INTERNAL"
}
