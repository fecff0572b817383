package azuresb

import (
	"context"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
)

// AzureSenderOption configures DefaultSenderFactory
type AzureSenderOption func(*azureSenderConfig)

type azureSenderConfig struct {
	client           *azservicebus.Client
	connectionString string
}

// WithSenderClient sets an existing azservicebus.Client, the factory does not close it.
func WithSenderClient(client *azservicebus.Client) AzureSenderOption {
	return func(cfg *azureSenderConfig) {
		cfg.client = client
	}
}

// WithSenderConnectionString makes the factory create and own a client.
func WithSenderConnectionString(connStr string) AzureSenderOption {
	return func(cfg *azureSenderConfig) {
		cfg.connectionString = connStr
	}
}

// DefaultSenderFactory creates SDK senders sharing one client.
type DefaultSenderFactory struct {
	client        *azservicebus.Client
	managedClient bool
	senders       []*azservicebus.Sender
	mutex         sync.Mutex
}

// NewDefaultSenderFactory creates a factory from a client or a connection string.
func NewDefaultSenderFactory(opts ...AzureSenderOption) (*DefaultSenderFactory, error) {
	var cfg azureSenderConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client != nil {
		return &DefaultSenderFactory{client: cfg.client}, nil
	}
	if cfg.connectionString == "" {
		return nil, errors.New("azuresb: no client or connection string provided")
	}
	client, err := azservicebus.NewClientFromConnectionString(cfg.connectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "azuresb: failed to create client")
	}
	return &DefaultSenderFactory{client: client, managedClient: true}, nil
}

// CreateSender creates a sender for the queue or topic named topic.
func (f *DefaultSenderFactory) CreateSender(topic string) (ASBSender, error) {
	sender, err := f.client.NewSender(topic, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "azuresb: failed to create sender for topic %q", topic)
	}
	f.mutex.Lock()
	f.senders = append(f.senders, sender)
	f.mutex.Unlock()
	return sender, nil
}

// Close closes every created sender and the client when the factory created it.
func (f *DefaultSenderFactory) Close(ctx context.Context) error {
	f.mutex.Lock()
	senders := f.senders
	f.senders = nil
	f.mutex.Unlock()

	var lastErr error
	for _, s := range senders {
		if err := s.Close(ctx); err != nil {
			lastErr = errors.Wrap(err, "azuresb: failed to close sender")
		}
	}
	if f.managedClient {
		if err := f.client.Close(ctx); err != nil {
			lastErr = errors.Wrap(err, "azuresb: failed to close client")
		}
	}
	return lastErr
}
