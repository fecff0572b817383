package dedup

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/velmie/beetle"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrUnknownStatus = Error("unknown handling status")
	// ErrExclusiveUnsupported is returned when exclusive handling is enabled for a store
	// which cannot insert-if-absent and delete.
	ErrExclusiveUnsupported = Error("exclusive handling requires a store with PutIfAbsent, CompareAndSwap and Delete")
)

// RequeueError tells the host that the message must not be acknowledged.
// Err is the handler error, nil when the message was requeued because another consumer holds it.
type RequeueError struct {
	Key string
	Err error
}

func (e *RequeueError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("message %q must be requeued", e.Key)
	}
	return fmt.Sprintf("message %q must be requeued: %s", e.Key, e.Err)
}

func (e *RequeueError) Unwrap() error {
	return e.Err
}

// Malformed reports whether err means that the message itself cannot be evaluated: it has
// no message id or one of its headers cannot be decoded. Such a message fails the same way
// on every delivery, transports discard it instead of returning it to the queue.
func Malformed(err error) bool {
	var hv *beetle.HeaderValueError
	return errors.Is(err, beetle.ErrMissingMessageID) || errors.As(err, &hv)
}
