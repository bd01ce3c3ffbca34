package memory

import (
	"errors"
	"fmt"
)

// Sentinel errors a caller can match with errors.Is. MemoryError wraps
// exactly one of these per spec.md's MemoryError taxonomy (AccessViolation,
// OutOfHeap, DoubleFree, UnknownFree).
var (
	ErrAccessViolation = errors.New("memory access violation")
	ErrOutOfHeap       = errors.New("out of heap")
	ErrDoubleFree      = errors.New("double free")
	ErrUnknownFree     = errors.New("free or realloc of unknown address")
)

// Error reports a memory fault with enough context for the fatal
// diagnostic line spec.md §7 requires ("<phase>: <kind>: <message>").
type Error struct {
	sentinel error
	detail   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.sentinel, e.detail)
}

func (e *Error) Unwrap() error {
	return e.sentinel
}

func accessViolation(detail string) *Error {
	return &Error{sentinel: ErrAccessViolation, detail: detail}
}

func outOfHeap(detail string) *Error {
	return &Error{sentinel: ErrOutOfHeap, detail: detail}
}

func doubleFree(detail string) *Error {
	return &Error{sentinel: ErrDoubleFree, detail: detail}
}

func unknownFree(detail string) *Error {
	return &Error{sentinel: ErrUnknownFree, detail: detail}
}
