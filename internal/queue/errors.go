package queue

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound = errors.New("queue item not found")
	ErrInvalidIndex = errors.New("invalid queue index")
	ErrInvalidSong  = errors.New("song payload is required")
)

// Error is a rejected queue mutation. It is reported to the originating
// client only and never changes group state.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	return &Error{Op: op, Err: err}
}
