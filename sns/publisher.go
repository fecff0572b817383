// Package sns publishes messages to SNS topics. Subscribed SQS queues receive the messages
// with their headers as message attributes, so sqs subscribers can deduplicate them.
package sns

import (
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
)

// Service is the part of the SNS API used by Publisher, *sns.SNS implements it.
type Service interface {
	Publish(input *sns.PublishInput) (*sns.PublishOutput, error)
}

type Publisher struct {
	snsService     Service
	region         string
	messageGroupID string
	accountID      string
}

func NewPublisher(snsService Service, region, messageGroupID, accountID string) *Publisher {
	return &Publisher{snsService, region, messageGroupID, accountID}
}

func (p *Publisher) topicArn(topic string) string {
	const (
		partition = "aws"
		service   = "sns"
	)
	return arn.ARN{
		Partition: partition,
		Service:   service,
		Region:    p.region,
		AccountID: p.accountID,
		Resource:  topic,
	}.String()
}

func (p *Publisher) Publish(topic string, message *beetle.Message, options ...beetle.PublishOption) error {
	if message.ID == "" {
		return beetle.ErrMissingMessageID
	}
	opts := beetle.DefaultPublishOptions()
	for _, o := range options {
		o(opts)
	}
	opts.Prepare(message, time.Now())

	topicArn := p.topicArn(topic)
	input := &sns.PublishInput{
		MessageAttributes: messageAttributes(message),
		Message:           aws.String(string(message.Body)),
		TopicArn:          &topicArn,
	}
	if isFifo(topic) {
		input.MessageGroupId = &p.messageGroupID
		input.MessageDeduplicationId = &message.ID
	}
	_, err := p.snsService.Publish(input)
	if err != nil {
		return errors.Wrapf(err, "SNS: cannot publish message to the topic %q", topic)
	}

	return nil
}
