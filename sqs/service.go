package sqs

import "github.com/aws/aws-sdk-go/service/sqs"

//go:generate go run go.uber.org/mock/mockgen@v0.5.0 -source service.go -destination ./mock/service.go

// Service is the part of the SQS API used by the subscriber and the publisher, *sqs.SQS implements it.
type Service interface {
	GetQueueUrl(input *sqs.GetQueueUrlInput) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(input *sqs.ChangeMessageVisibilityInput) (*sqs.ChangeMessageVisibilityOutput, error)
	SendMessage(input *sqs.SendMessageInput) (*sqs.SendMessageOutput, error)
}
