package store

import (
	"errors"
	"fmt"
)

var (
	ErrPersistenceWrite = errors.New("persistence write failed")
	ErrPersistenceRead  = errors.New("persistence read failed")

	// ErrNotHydrated is reported for changes made while the cart could not
	// be read; they are written once a read succeeds.
	ErrNotHydrated = errors.New("cart not loaded from persistence")
)

// PersistenceError reports a failed exchange with the persistence adapter.
// It matches ErrPersistenceWrite or ErrPersistenceRead as well as the
// adapter's own error.
type PersistenceError struct {
	Op  string
	Key string
	Err error

	kind error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %s %s: %v", e.kind, e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{e.kind, e.Err}
}

func writeError(op, key string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Key: key, Err: err, kind: ErrPersistenceWrite}
}

func readError(key string, err error) *PersistenceError {
	return &PersistenceError{Op: "initialize", Key: key, Err: err, kind: ErrPersistenceRead}
}
