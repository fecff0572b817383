package azuresb

import "github.com/pkg/errors"

// ReceiverFactory creates a receiver for every subscription.
type ReceiverFactory interface {
	CreateReceiver(topic string) (Receiver, error)
}

type DefaultReceiverFactory struct {
	opts []AzureReceiverOption
}

func NewDefaultReceiverFactory(opts ...AzureReceiverOption) *DefaultReceiverFactory {
	return &DefaultReceiverFactory{opts: opts}
}

func (f DefaultReceiverFactory) CreateReceiver(topic string) (Receiver, error) {
	r, err := NewAzureReceiver(topic, f.opts...)
	if err != nil {
		return nil, errors.Wrap(err, "azuresb.DefaultReceiverFactory.CreateReceiver")
	}
	return r, nil
}
