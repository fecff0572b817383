package sqs

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
)

func getQueueURL(sqsService Service, topic string) (string, error) {
	getURLInput := &sqs.GetQueueUrlInput{QueueName: &topic}
	out, err := sqsService.GetQueueUrl(getURLInput)
	if err != nil {
		return "", errors.Wrapf(err, "cannot get queue url by the given topic %q", topic)
	}
	return *out.QueueUrl, nil
}

func copyMessageHeader(m *beetle.Message) (attribs map[string]*sqs.MessageAttributeValue) {
	attribs = make(map[string]*sqs.MessageAttributeValue)
	for k, v := range m.Header {
		attribs[k] = &sqs.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return attribs
}

// buildMessageHeader reads String and Number attributes, binary attributes are kept as text.
func buildMessageHeader(attribs map[string]*sqs.MessageAttributeValue) beetle.Header {
	res := make(beetle.Header)

	for k, v := range attribs {
		switch {
		case v == nil:
		case v.StringValue != nil:
			res[k] = *v.StringValue
		case v.BinaryValue != nil:
			res[k] = string(v.BinaryValue)
		}
	}
	return res
}

// buildMessage converts a received message, the id is taken from the message-id attribute
// and falls back to the SQS message id.
func buildMessage(msg *sqs.Message) *beetle.Message {
	m := &beetle.Message{
		Header: buildMessageHeader(msg.MessageAttributes),
		Body:   []byte(aws.StringValue(msg.Body)),
	}
	m.ID = m.Header.Get(beetle.HdrMessageID)
	if m.ID == "" {
		m.ID = aws.StringValue(msg.MessageId)
	}
	return m
}
