package beetle

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
)

// Chain wraps h with the given middleware. The first middleware is the outermost one.
func Chain(h Handler, middleware ...Middleware) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// PanicRecoveryMiddleware creates a middleware to recover from panics.
// A panicking handler is reported as a failed one, so the message is requeued
// instead of taking the consumer down.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(e Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("panic recovered: %v\n%s", r, debug.Stack())
				}
			}()
			return next(e)
		}
	}
}

// LoggingMiddleware creates a middleware for logging the results of event processing.
// Successful events are logged at Info level and failed ones at Error level together
// with the message id, topic, redundancy flag and processing time.
func LoggingMiddleware(logger Logger, options ...LoggingMiddlewareOption) Middleware {
	opts := &loggingMiddlewareOptions{
		logError: true,
		logHeaderFunc: func(e Event) string {
			return fmt.Sprintf("%+v", e.Message().Header)
		},
		logBodyFunc: func(e Event) string {
			const logBodyMax = 4096
			data := e.Message().Body
			if len(data) > logBodyMax {
				return string(data[:logBodyMax])
			}
			return string(data)
		},
	}
	for _, opt := range options {
		opt(opts)
	}

	return func(next Handler) Handler {
		return func(e Event) error {
			startTime := time.Now()
			err := next(e)
			duration := time.Since(startTime)

			m := e.Message()
			redundant, _ := m.Header.Redundant()
			args := []any{
				"messageId", m.ID,
				"topic", e.Topic(),
				"redundant", redundant,
				"duration", duration,
			}
			if err != nil && opts.logError {
				args = append(args, "error", err.Error())
			}
			if opts.logHeader {
				args = append(args, "header", opts.logHeaderFunc(e))
			}
			if opts.logBody || err != nil && opts.logBodyOnError {
				args = append(args, "body", opts.logBodyFunc(e))
			}
			if err != nil {
				logger.Error("event processing failed", args...)
			} else {
				logger.Info("event processed", args...)
			}

			return err
		}
	}
}

type loggingMiddlewareOptions struct {
	logError       bool
	logHeader      bool
	logHeaderFunc  func(e Event) string
	logBody        bool
	logBodyOnError bool
	logBodyFunc    func(e Event) string
}

// LoggingMiddlewareOption defines a function type for setting options on the logging middleware.
type LoggingMiddlewareOption func(*loggingMiddlewareOptions)

// WithLogError toggles logging of the handler error.
func WithLogError(logError bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logError = logError
	}
}

// WithLogHeader toggles logging of the message header.
func WithLogHeader(logHeader bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logHeader = logHeader
	}
}

// WithLogHeaderFunc sets a custom function to format the header for logging.
func WithLogHeaderFunc(logHeaderFunc func(e Event) string) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logHeaderFunc = logHeaderFunc
	}
}

// WithLogBody toggles logging of the message body.
func WithLogBody(logBody bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logBody = logBody
	}
}

// WithLogBodyOnError enables logging of the body for failed events only.
func WithLogBodyOnError(logBodyOnError bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logBodyOnError = logBodyOnError
	}
}

// WithLogBodyFunc sets a custom function to format the body for logging.
func WithLogBodyFunc(logBodyFunc func(e Event) string) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logBodyFunc = logBodyFunc
	}
}
