package sqs

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/velmie/beetle"
	mock_sqs "github.com/velmie/beetle/sqs/mock"
)

func TestPublisherPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv := mock_sqs.NewMockService(ctrl)
	publisher := NewPublisher(srv, "")

	srv.EXPECT().GetQueueUrl(gomock.Any()).Return(&sqs.GetQueueUrlOutput{QueueUrl: stringP("url")}, nil).Times(1)
	var sent []*sqs.SendMessageInput
	srv.EXPECT().SendMessage(gomock.Any()).DoAndReturn(func(in *sqs.SendMessageInput) (*sqs.SendMessageOutput, error) {
		sent = append(sent, in)
		return &sqs.SendMessageOutput{}, nil
	}).Times(2)

	for i := 0; i < 2; i++ {
		msg := beetle.NewMessage()
		msg.ID = "order-1"
		msg.Body = []byte("payload")
		require.NoError(t, publisher.Publish("orders", msg, beetle.Redundant()))
	}

	require.Len(t, sent, 2)
	in := sent[0]
	assert.Equal(t, "url", aws.StringValue(in.QueueUrl))
	assert.Nil(t, in.MessageGroupId)
	assert.Equal(t, "order-1", aws.StringValue(in.MessageAttributes[beetle.HdrMessageID].StringValue))
	assert.Equal(t, "1", aws.StringValue(in.MessageAttributes[beetle.HdrFlags].StringValue))
	assert.Contains(t, in.MessageAttributes, beetle.HdrExpiresAt)
}

func TestPublisherRequiresMessageID(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewPublisher(mock_sqs.NewMockService(ctrl), "group")

	err := publisher.Publish("orders", beetle.NewMessage())
	require.ErrorIs(t, err, beetle.ErrMissingMessageID)
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage(&sqs.Message{
		MessageId: stringP("sqs-1"),
		Body:      stringP("payload"),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			beetle.HdrExpiresAt: {DataType: stringP("Number"), StringValue: stringP("1700000000")},
			"raw":               {DataType: stringP("Binary"), BinaryValue: []byte("bytes")},
		},
	})

	assert.Equal(t, "sqs-1", msg.ID)
	assert.Equal(t, "payload", string(msg.Body))
	assert.Equal(t, "bytes", msg.Header.Get("raw"))
	expiresAt, err := msg.Header.ExpiresAt()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), expiresAt)
}
