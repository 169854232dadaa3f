package store

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// Conflict means a concurrent transaction won; the whole transaction
	// can be retried.
	Conflict ErrorKind = iota + 1
	// Unavailable means the store could not be reached or failed; the
	// calling operation is abandoned.
	Unavailable
)

func (k ErrorKind) String() string {
	switch k {
	case Conflict:
		return "conflict"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

var (
	ErrConflict    = errors.New("store conflict")
	ErrUnavailable = errors.New("store unavailable")
)

type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
	}

	return fmt.Sprintf("store %s: %s", e.Op, e.Kind)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches the ErrConflict and ErrUnavailable sentinels by kind.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Kind == Conflict
	case ErrUnavailable:
		return e.Kind == Unavailable
	}
	return false
}

func NewConflictError(op string, err error) *StoreError {
	return &StoreError{Kind: Conflict, Op: op, Err: err}
}

func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Kind: Unavailable, Op: op, Err: err}
}

// IsConflict reports whether err is a retryable conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
