package natsjs

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
)

// Publisher publishes to a JetStream stream. The message id is sent as Nats-Msg-Id, so
// the server drops copies published within the stream duplicate window.
type Publisher struct {
	// usually project name is used
	streamName string
	// usually service name is used
	subjectPrefix string
	jetStream     JetStream
}

func NewPublisher(
	streamName string,
	subjectPrefix string,
	jetStream JetStream,
) (*Publisher, error) {
	if subjectPrefix == "" {
		return nil, ErrSubjectPrefix
	}
	if streamName == "" {
		return nil, ErrStreamName
	}

	return &Publisher{
		streamName:    strings.ToUpper(streamName),
		subjectPrefix: strings.ToUpper(subjectPrefix),
		jetStream:     jetStream,
	}, nil
}

func (p *Publisher) Publish(subject string, message *beetle.Message, options ...beetle.PublishOption) error {
	if message.ID == "" {
		return beetle.ErrMissingMessageID
	}
	subject, err := buildSubject(subject, p.subjectPrefix)
	if err != nil {
		return err
	}

	opts := beetle.DefaultPublishOptions()
	for _, o := range options {
		o(opts)
	}
	opts.Prepare(message, time.Now())

	msg := nats.NewMsg(subject)
	msg.Header = copyMessageHeader(message)
	msg.Header.Set(nats.MsgIdHdr, message.ID)
	msg.Data = message.Body

	_, err = p.jetStream.PublishMsg(msg)
	if err != nil {
		return errors.Wrap(err, "NATS JetStream: cannot send message")
	}
	return nil
}

// EnsureStream creates the stream or adds the subjects of the publisher to it.
func (p *Publisher) EnsureStream() error {
	subject := p.subjectPrefix + ".>"
	si, err := p.jetStream.StreamInfo(p.streamName)
	if err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			_, err = p.jetStream.AddStream(&nats.StreamConfig{
				Name:     p.streamName,
				Subjects: []string{subject},
			})
		}
		return errors.Wrapf(err, "NATS JetStream: cannot set up the stream %q", p.streamName)
	}
	for _, v := range si.Config.Subjects {
		if v == subject {
			return nil
		}
	}
	si.Config.Subjects = append(si.Config.Subjects, subject)
	_, err = p.jetStream.UpdateStream(&si.Config)
	return errors.Wrapf(err, "NATS JetStream: cannot set up the stream %q", p.streamName)
}
