package sqs

import (
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
)

type Publisher struct {
	sqsService      Service
	messageGroupID  string
	queueURLByTopic map[string]string
	mutex           sync.Mutex
}

// NewPublisher creates a publisher. A non-empty messageGroupID is required by FIFO queues,
// the message id is then used as the deduplication id.
func NewPublisher(
	sqsService Service,
	messageGroupID string,
) *Publisher {
	return &Publisher{sqsService: sqsService, messageGroupID: messageGroupID, queueURLByTopic: make(map[string]string)}
}

func (p *Publisher) queueURL(topic string) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if queueURL := p.queueURLByTopic[topic]; queueURL != "" {
		return queueURL, nil
	}
	queueURL, err := getQueueURL(p.sqsService, topic)
	if err != nil {
		return "", err
	}
	p.queueURLByTopic[topic] = queueURL
	return queueURL, nil
}

func (p *Publisher) Publish(topic string, message *beetle.Message, options ...beetle.PublishOption) error {
	if message.ID == "" {
		return beetle.ErrMissingMessageID
	}
	queueURL, err := p.queueURL(topic)
	if err != nil {
		return err
	}

	opts := beetle.DefaultPublishOptions()
	for _, o := range options {
		o(opts)
	}
	opts.Prepare(message, time.Now())

	input := &sqs.SendMessageInput{
		MessageAttributes: copyMessageHeader(message),
		MessageBody:       aws.String(string(message.Body)),
		QueueUrl:          &queueURL,
	}
	if p.messageGroupID != "" {
		input.MessageDeduplicationId = &message.ID
		input.MessageGroupId = &p.messageGroupID
	}
	_, err = p.sqsService.SendMessage(input)
	if err != nil {
		return errors.Wrap(err, "SQS: cannot send message")
	}
	return nil
}
