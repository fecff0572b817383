package sns

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"

	"github.com/velmie/beetle"
)

// numericHeaders are sent with the Number data type, subscribed SQS queues deliver them unchanged.
var numericHeaders = map[string]bool{
	beetle.HdrExpiresAt: true,
	beetle.HdrFlags:     true,
}

// messageAttributes converts the header. SNS rejects attributes with empty values, they are skipped.
func messageAttributes(m *beetle.Message) map[string]*sns.MessageAttributeValue {
	attribs := make(map[string]*sns.MessageAttributeValue, len(m.Header))
	for k, v := range m.Header {
		if v == "" {
			continue
		}
		dataType := "String"
		if numericHeaders[k] {
			dataType = "Number"
		}
		attribs[k] = &sns.MessageAttributeValue{
			DataType:    aws.String(dataType),
			StringValue: aws.String(v),
		}
	}
	return attribs
}

func isFifo(topic string) bool {
	const suffix = ".fifo"
	return len(topic) > len(suffix) && strings.HasSuffix(topic, suffix)
}
