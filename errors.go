package beetle

import "fmt"

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	AlreadySubscribed   = Error("already subscribed")
	ErrMissingMessageID = Error("message has no message id")
	ErrNoPublisher      = Error("no publisher accepted the message")
)

// HeaderValueError is returned when a header value has a type that cannot be read as an integer.
type HeaderValueError struct {
	Header string
	Type   string
}

func (e *HeaderValueError) Error() string {
	return fmt.Sprintf("unexpected %s header value %s", e.Header, e.Type)
}
