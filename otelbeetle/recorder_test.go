package otelbeetle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/kv"
	"github.com/velmie/beetle/otelbeetle"
)

type testEvent struct {
	message *beetle.Message
}

func (e *testEvent) Topic() string            { return "orders" }
func (e *testEvent) Message() *beetle.Message { return e.message }
func (e *testEvent) Ack() error               { return nil }

func newEvent(id string) *testEvent {
	msg := beetle.NewMessage()
	msg.ID = id
	msg.Header.SetRedundant()
	return &testEvent{message: msg}
}

func collectDecisions(t *testing.T, reader *sdkmetric.ManualReader) map[attribute.Distinct]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[attribute.Distinct]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != otelbeetle.DecisionsMetric {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				out[dp.Attributes.Equivalent()] = dp.Value
			}
		}
	}
	return out
}

func TestDecisionRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder, err := otelbeetle.NewDecisionRecorder(otelbeetle.NewMeter(mp))
	require.NoError(t, err)

	tp, sr := newTracerProvider()
	handler := beetle.Chain(
		func(e beetle.Event) error {
			if e.Message().ID == "B" {
				return errors.New("handler error")
			}
			return nil
		},
		otelbeetle.ConsumerMiddleware(otelbeetle.WithTracerProvider(tp)),
		dedup.Middleware(kv.NewMemory[string](), dedup.WithObserver(recorder.Observe)),
	)

	require.NoError(t, handler(newEvent("A")))
	require.NoError(t, handler(newEvent("A")))
	var requeue *dedup.RequeueError
	require.ErrorAs(t, handler(newEvent("B")), &requeue)

	got := collectDecisions(t, reader)
	completed := attribute.NewSet(
		attribute.String("beetle.dedup.reason", "handled"),
		attribute.String("beetle.dedup.disposition", "drop"),
		attribute.Bool("beetle.dedup.invoked", true),
		attribute.String("beetle.dedup.status", "COMPLETE"),
	)
	skipped := attribute.NewSet(
		attribute.String("beetle.dedup.reason", "already_handled"),
		attribute.String("beetle.dedup.disposition", "drop"),
		attribute.Bool("beetle.dedup.invoked", false),
		attribute.String("beetle.dedup.status", "COMPLETE"),
	)
	failed := attribute.NewSet(
		attribute.String("beetle.dedup.reason", "handled"),
		attribute.String("beetle.dedup.disposition", "requeue"),
		attribute.Bool("beetle.dedup.invoked", true),
		attribute.String("beetle.dedup.status", "INCOMPLETE"),
	)
	assert.Equal(t, map[attribute.Distinct]int64{
		completed.Equivalent(): 1,
		skipped.Equivalent():   1,
		failed.Equivalent():    1,
	}, got)

	spans := sr.Ended()
	require.Len(t, spans, 3)
	for _, span := range spans {
		events := span.Events()
		require.Len(t, events, 1)
		assert.Equal(t, otelbeetle.DecisionEvent, events[0].Name)
	}
}
