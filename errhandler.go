package beetle

import "time"

// LogErrorHandler logs passed error
func LogErrorHandler(log Logger) ErrorHandler {
	return func(err error, sub Subscription) {
		log.Error("subscription error", "topic", sub.Topic(), "error", err.Error())
	}
}

// DelayErrorHandler waits for the specified duration, it slows down a consumer
// whose store or transport keeps failing.
func DelayErrorHandler(duration time.Duration, logger ...Logger) ErrorHandler {
	var log Logger
	if len(logger) > 0 {
		log = logger[0]
	}
	return func(_ error, sub Subscription) {
		if log != nil {
			log.Debug("delaying subscription after error", "topic", sub.Topic(), "delay", duration)
		}
		select {
		case <-time.After(duration):
		case <-sub.Done():
		}
	}
}

// CombineErrorHandlers combines multiple error handlers by calling them sequentially
func CombineErrorHandlers(handlers ...ErrorHandler) ErrorHandler {
	return func(err error, sub Subscription) {
		for _, handler := range handlers {
			handler(err, sub)
		}
	}
}

// WithDefaultErrorHandler is SubscribeOption which logs errors and delays the subscription
func WithDefaultErrorHandler(log Logger) SubscribeOption {
	const defaultDelay = 5 * time.Second
	return func(options *SubscribeOptions) {
		options.ErrorHandler = CombineErrorHandlers(
			LogErrorHandler(log),
			DelayErrorHandler(defaultDelay, log),
		)
	}
}
