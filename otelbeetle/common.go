// Package otelbeetle instruments publishers, handlers and deduplication decisions with OpenTelemetry.
package otelbeetle

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/beetle"
)

// ScopeName is the instrumentation scope name.
const (
	ScopeName = "github.com/velmie/beetle/otelbeetle"
	Version   = "0.1.0"
)

func newTracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(ScopeName, trace.WithInstrumentationVersion(Version))
}

// NewMeter returns the meter of this instrumentation scope.
func NewMeter(mp metric.MeterProvider) metric.Meter {
	return mp.Meter(ScopeName, metric.WithInstrumentationVersion(Version))
}

func commonAttributes(topic string, msg *beetle.Message) []attribute.KeyValue {
	attr := []attribute.KeyValue{
		semconv.MessagingDestinationName(topic),
		semconv.MessagingMessagePayloadSizeBytes(len(msg.Body)),
	}
	if msg.ID != "" {
		attr = append(attr, semconv.MessagingMessageID(msg.ID))
	}

	if correlationID := msg.Header.GetCorrelationID(); correlationID != "" {
		attr = append(attr, semconv.MessagingMessageConversationID(correlationID))
	}
	if redundant, err := msg.Header.Redundant(); err == nil && redundant {
		attr = append(attr, attrRedundant.Bool(true))
	}

	return attr
}

const (
	attrRedundant   = attribute.Key("beetle.message.redundant")
	attrReason      = attribute.Key("beetle.dedup.reason")
	attrStatus      = attribute.Key("beetle.dedup.status")
	attrDisposition = attribute.Key("beetle.dedup.disposition")
	attrInvoked     = attribute.Key("beetle.dedup.invoked")
	attrAttempts    = attribute.Key("beetle.dedup.attempts")
)
