package natsjs

import (
	"github.com/velmie/beetle"
)

// message is given to handlers, JetStream messages are acknowledged by the interceptor.
type message struct {
	subject string
	message *beetle.Message
}

func (m *message) Topic() string {
	return m.subject
}

func (m *message) Message() *beetle.Message {
	return m.message
}

func (m *message) Ack() error {
	return nil
}
