package otelbeetle

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/beetle"
)

// PublisherMiddleware creates a middleware for beetle.Publisher that integrates tracing.
// The trace context is injected into the message header, so every redundant copy carries it.
func PublisherMiddleware(option ...Option) beetle.PublisherMiddleware {
	opts := defaultOptions()
	opts.spanNameFormatter = spanNameFormatter("publish")
	opts.apply(option)
	return func(next beetle.Publisher) beetle.Publisher {
		return beetle.PublisherFunc(func(topic string, msg *beetle.Message, options ...beetle.PublishOption) error {
			tracer := opts.tracerFor(msg)

			kind := trace.WithSpanKind(trace.SpanKindProducer)
			attrs := append(commonAttributes(topic, msg), semconv.MessagingOperationPublish)
			sopts := append(
				[]trace.SpanStartOption{kind, trace.WithAttributes(attrs...)},
				opts.spanStartOptions...,
			)

			ctx, span := tracer.Start(msg.Context(), opts.spanNameFormatter(topic, msg), sopts...)
			defer span.End()

			if msg.Header == nil {
				msg.Header = make(beetle.Header)
			}
			opts.propagator.Inject(ctx, propagation.MapCarrier(msg.Header))
			err := next.Publish(topic, msg, options...)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return err
		})
	}
}

// ConsumerMiddleware creates a middleware for beetle.Handler that integrates tracing.
// Placed before dedup.Middleware the span also covers messages which are not handled again,
// a DecisionRecorder then adds the decision to it.
func ConsumerMiddleware(option ...Option) beetle.Middleware {
	opts := defaultOptions()
	opts.spanNameFormatter = spanNameFormatter("receive")
	opts.apply(option)
	return func(next beetle.Handler) beetle.Handler {
		return func(event beetle.Event) error {
			msg := event.Message()
			topic := event.Topic()

			tracer := opts.tracerFor(msg)
			if msg.Header == nil {
				msg.Header = make(beetle.Header)
			}
			ctx := opts.propagator.Extract(msg.Context(), propagation.MapCarrier(msg.Header))

			kind := trace.WithSpanKind(trace.SpanKindConsumer)
			attrs := append(commonAttributes(topic, msg), semconv.MessagingOperationReceive)
			sopts := append(
				[]trace.SpanStartOption{kind, trace.WithAttributes(attrs...)},
				opts.spanStartOptions...,
			)

			ctx, span := tracer.Start(ctx, opts.spanNameFormatter(topic, msg), sopts...)
			defer span.End()

			msg.SetContext(ctx)

			err := next(event)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return err
		}
	}
}

// Option is a functional option type for configuring propagation
type Option func(opts *options)

// WithPropagator returns an Option that sets a custom propagator
// for text map propagation of trace context.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(opts *options) {
		opts.propagator = p
	}
}

// WithTracerProvider sets the provider used when the message context carries no span.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opts *options) {
		opts.tracerProvider = tp
	}
}

// WithSpanStartOptions returns an Option that sets custom
// SpanStartOptions for starting new spans.
func WithSpanStartOptions(startOpts ...trace.SpanStartOption) Option {
	return func(opts *options) {
		opts.spanStartOptions = startOpts
	}
}

// WithSpanNameFormatter returns an Option that sets a custom
// function for formatting span names.
func WithSpanNameFormatter(formatter func(topic string, msg *beetle.Message) string) Option {
	return func(opts *options) {
		opts.spanNameFormatter = formatter
	}
}

type options struct {
	propagator        propagation.TextMapPropagator
	tracerProvider    trace.TracerProvider
	spanStartOptions  []trace.SpanStartOption
	spanNameFormatter func(topic string, msg *beetle.Message) string
}

func (o *options) apply(opts []Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// tracerFor prefers the provider of the span already present in the message context.
func (o *options) tracerFor(msg *beetle.Message) trace.Tracer {
	if span := trace.SpanFromContext(msg.Context()); span.SpanContext().IsValid() {
		return newTracer(span.TracerProvider())
	}
	if o.tracerProvider != nil {
		return newTracer(o.tracerProvider)
	}
	return newTracer(otel.GetTracerProvider())
}

// defaultOptions uses the global OpenTelemetry TextMapPropagator.
func defaultOptions() *options {
	return &options{
		propagator: otel.GetTextMapPropagator(),
	}
}

func spanNameFormatter(operation string) func(topic string, msg *beetle.Message) string {
	return func(topic string, msg *beetle.Message) string {
		return topic + " " + operation
	}
}
