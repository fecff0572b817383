package sqs

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/velmie/beetle"
)

type message struct {
	topic      string
	message    *beetle.Message
	queueURL   string
	sqsMessage *sqs.Message
	sqsService Service
	requeue    bool
}

func (m *message) Topic() string {
	return m.topic
}

func (m *message) Message() *beetle.Message {
	return m.message
}

func (m *message) Ack() error {
	deleteMsgInput := &sqs.DeleteMessageInput{
		QueueUrl:      &m.queueURL,
		ReceiptHandle: m.sqsMessage.ReceiptHandle,
	}
	_, err := m.sqsService.DeleteMessage(deleteMsgInput)
	return err
}

// Requeue makes the message visible again at once. A subscription which discards
// rejected messages deletes it instead.
func (m *message) Requeue() error {
	if !m.requeue {
		return m.Ack()
	}
	return m.release()
}

// release makes the message visible again at once.
func (m *message) release() error {
	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &m.queueURL,
		ReceiptHandle:     m.sqsMessage.ReceiptHandle,
		VisibilityTimeout: aws.Int64(0),
	}
	_, err := m.sqsService.ChangeMessageVisibility(input)
	return err
}

// settledEvent is given to handlers when deduplication is enabled, the interceptor
// deletes or releases the message itself.
type settledEvent struct {
	topic   string
	message *beetle.Message
}

func (e *settledEvent) Topic() string {
	return e.topic
}

func (e *settledEvent) Message() *beetle.Message {
	return e.message
}

func (e *settledEvent) Ack() error {
	return nil
}
