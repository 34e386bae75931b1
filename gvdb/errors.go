package gvdb

import (
	"errors"
	"fmt"
)

// Reader errors (spec §7).
var (
	ErrInvalidMagic   = errors.New("gvdb: invalid magic")
	ErrInvalidVersion = errors.New("gvdb: invalid version")
	ErrInvalidPointer = errors.New("gvdb: invalid pointer")
	ErrKeyNotFound    = errors.New("gvdb: key not found")
)

// Writer errors.
var ErrConsistency = errors.New("gvdb: consistency violation")

// DataError is the catch-all structural-violation error named in spec §7
// ("Data(msg)"). It always names the invariant it caught.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string { return "gvdb: data error: " + e.Reason }

func dataErrorf(format string, args ...any) error {
	return &DataError{Reason: fmt.Sprintf(format, args...)}
}

// KeyNotFoundError wraps ErrKeyNotFound with the offending key so callers
// can match with errors.Is(err, ErrKeyNotFound) while still recovering
// the key via errors.As.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("gvdb: key not found: %q", e.Key)
}

func (e *KeyNotFoundError) Unwrap() error { return ErrKeyNotFound }

func errKeyNotFound(key string) error { return &KeyNotFoundError{Key: key} }

// InvalidPointerError names which pointer field failed validation.
type InvalidPointerError struct {
	Where string
	Start uint32
	End   uint32
}

func (e *InvalidPointerError) Error() string {
	return fmt.Sprintf("gvdb: invalid pointer at %s: start=%d end=%d", e.Where, e.Start, e.End)
}

func (e *InvalidPointerError) Unwrap() error { return ErrInvalidPointer }

func errInvalidPointer(where string, start, end uint32) error {
	return &InvalidPointerError{Where: where, Start: start, End: end}
}
