package kernel

import (
	"errors"
	"fmt"
)

// Sentinel errors for the KernelError taxonomy (spec.md §7). Kernel errors
// are fatal: there is no guest-visible errno, per spec.md's error
// propagation rule.
var (
	ErrBadFd            = errors.New("bad file descriptor")
	ErrClosedStandardFd = errors.New("cannot close a standard file descriptor")
	ErrIOFailure        = errors.New("io failure")
	ErrInvalidInterrupt = errors.New("invalid interrupt")
)

// Error wraps one taxonomy sentinel with detail, in the
// "<kind>: <message>" shape spec.md §7's diagnostics use.
type Error struct {
	sentinel error
	detail   string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.sentinel, e.detail) }
func (e *Error) Unwrap() error { return e.sentinel }

func newError(sentinel error, detail string) *Error { return &Error{sentinel, detail} }
