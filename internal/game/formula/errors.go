package formula

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved is returned when a formula references an unbound @name.
	ErrUnresolved = errors.New("unresolved reference")
	// ErrSyntax is returned for malformed formula text.
	ErrSyntax = errors.New("syntax error")
	// ErrDivisionByZero is returned when a divisor evaluates to zero.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrTooManyDice is returned when a dice term exceeds MaxDice.
	ErrTooManyDice = errors.New("too many dice")
)

// Error describes a formula that could not be evaluated.
type Error struct {
	Formula string
	Pos     int
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("formula %q: %v", e.Formula, e.Err)
	}
	return fmt.Sprintf("formula %q: %v: %s", e.Formula, e.Err, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(formula string, pos int, err error, format string, args ...any) *Error {
	return &Error{
		Formula: formula,
		Pos:     pos,
		Detail:  fmt.Sprintf(format, args...),
		Err:     err,
	}
}
