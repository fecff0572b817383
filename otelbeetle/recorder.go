package otelbeetle

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/beetle/dedup"
)

const (
	DecisionsMetric = "beetle.dedup.decisions"
	AttemptsMetric  = "beetle.dedup.attempts"
	DecisionEvent   = "beetle.dedup.decision"
)

// DecisionRecorder counts deduplication decisions and adds them as events to the current span.
type DecisionRecorder struct {
	decisions metric.Int64Counter
	attempts  metric.Int64Histogram
}

func NewDecisionRecorder(meter metric.Meter) (*DecisionRecorder, error) {
	decisions, err := meter.Int64Counter(DecisionsMetric,
		metric.WithDescription("Messages evaluated by the deduplication interceptor"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create %s counter", DecisionsMetric)
	}
	attempts, err := meter.Int64Histogram(AttemptsMetric,
		metric.WithDescription("Handler attempts recorded for a key after each invocation"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create %s histogram", AttemptsMetric)
	}
	return &DecisionRecorder{decisions: decisions, attempts: attempts}, nil
}

// Observe records d, it is meant to be passed to dedup.WithObserver.
func (r *DecisionRecorder) Observe(ctx context.Context, d dedup.Decision) {
	attrs := decisionAttributes(d)
	set := metric.WithAttributeSet(attribute.NewSet(attrs...))
	r.decisions.Add(ctx, 1, set)
	if d.Invoked {
		r.attempts.Record(ctx, int64(d.Attempts), set)
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	eventAttrs := append(attrs, attrAttempts.Int(d.Attempts))
	span.AddEvent(DecisionEvent, trace.WithAttributes(eventAttrs...))
}

func decisionAttributes(d dedup.Decision) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attrReason.String(d.Reason.String()),
		attrDisposition.String(d.Disposition.String()),
		attrInvoked.Bool(d.Invoked),
	}
	if d.Next != "" {
		attrs = append(attrs, attrStatus.String(d.Next.String()))
	}
	return attrs
}
