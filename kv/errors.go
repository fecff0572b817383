package kv

import "fmt"

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrUnsupported is returned when the backing store lacks an optional capability.
	ErrUnsupported = Error("operation is not supported by the store")
)

// DecodeError is returned when a stored value cannot be decoded by a suffixed view.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode value of %q: %s", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
