package natsjs

import "github.com/velmie/beetle"

const (
	ErrSubjectInvalid = beetle.Error("invalid subject")
	ErrServiceName    = beetle.Error("service name cannot be empty")
	ErrStreamName     = beetle.Error("stream name cannot be empty")
	ErrSubjectPrefix  = beetle.Error("subject prefix cannot be empty")
)
