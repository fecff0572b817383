package azuresb

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
)

const (
	ReceiverTypeQueue        = ReceiverType("queue")
	ReceiverTypeSubscription = ReceiverType("subscription")
)

// Receiver receives messages in batches and settles them.
// *azservicebus.Receiver implements it.
type Receiver interface {
	Settler
	// ReceiveMessages blocks until at least one message is received or ctx is cancelled.
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	Close(ctx context.Context) error
}

type ReceiverType string

// AzureReceiver wraps an SDK receiver, the client is closed with it when the receiver created the client.
type AzureReceiver struct {
	Receiver
	client        *azservicebus.Client
	managedClient bool
}

// AzureReceiverOption configures the creation of an AzureReceiver
type AzureReceiverOption func(*azureReceiverConfig)

type azureReceiverConfig struct {
	existingReceiver Receiver
	client           *azservicebus.Client
	connectionString string
	receiverType     ReceiverType
	subscriptionName string
	receiverOptions  *azservicebus.ReceiverOptions
}

// WithExistingReceiver allows supplying an already created receiver
func WithExistingReceiver(r Receiver) AzureReceiverOption {
	return func(cfg *azureReceiverConfig) {
		cfg.existingReceiver = r
	}
}

// WithReceiverClient allows providing an existing azservicebus.Client
func WithReceiverClient(client *azservicebus.Client) AzureReceiverOption {
	return func(cfg *azureReceiverConfig) {
		cfg.client = client
	}
}

// WithReceiverConnectionString instructs NewAzureReceiver to create its own client using the given connection string
func WithReceiverConnectionString(connStr string) AzureReceiverOption {
	return func(cfg *azureReceiverConfig) {
		cfg.connectionString = connStr
	}
}

// WithReceiverType explicitly sets the receiver type.
// Defaults to ReceiverTypeQueue.
func WithReceiverType(rt ReceiverType) AzureReceiverOption {
	return func(cfg *azureReceiverConfig) {
		cfg.receiverType = rt
	}
}

// WithSubscriptionName sets the subscription name and marks the receiver type as ReceiverTypeSubscription.
// The topic given to Subscribe is then the Service Bus topic name.
func WithSubscriptionName(subscriptionName string) AzureReceiverOption {
	return func(cfg *azureReceiverConfig) {
		cfg.receiverType = ReceiverTypeSubscription
		cfg.subscriptionName = subscriptionName
	}
}

// WithReceiverOptions passes SDK receiver options. The receive mode must stay PeekLock,
// messages are settled after their handling status is stored.
func WithReceiverOptions(options *azservicebus.ReceiverOptions) AzureReceiverOption {
	return func(cfg *azureReceiverConfig) {
		cfg.receiverOptions = options
	}
}

// NewAzureReceiver creates a receiver for the queue (or topic, for subscription receivers) named topic.
func NewAzureReceiver(topic string, opts ...AzureReceiverOption) (*AzureReceiver, error) {
	cfg := azureReceiverConfig{receiverType: ReceiverTypeQueue}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.existingReceiver != nil {
		return &AzureReceiver{Receiver: cfg.existingReceiver}, nil
	}
	if cfg.receiverOptions != nil && cfg.receiverOptions.ReceiveMode == azservicebus.ReceiveModeReceiveAndDelete {
		return nil, errors.New("receive and delete mode cannot be used with deduplication")
	}
	if cfg.client != nil {
		return createReceiverFromClient(topic, cfg, cfg.client)
	}
	if cfg.connectionString != "" {
		client, err := azservicebus.NewClientFromConnectionString(cfg.connectionString, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create service bus client")
		}
		r, err := createReceiverFromClient(topic, cfg, client)
		if err != nil {
			_ = client.Close(context.Background())
			return nil, err
		}
		r.managedClient = true
		return r, nil
	}

	return nil, errors.New("insufficient configuration: provide an existing receiver, client, or connection string")
}

func createReceiverFromClient(topic string, cfg azureReceiverConfig, client *azservicebus.Client) (*AzureReceiver, error) {
	if cfg.receiverType == ReceiverTypeSubscription {
		if cfg.subscriptionName == "" {
			return nil, errors.New("subscription name must be provided for a subscription receiver")
		}
		r, err := client.NewReceiverForSubscription(topic, cfg.subscriptionName, cfg.receiverOptions)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create receiver for subscription %q on topic %q", cfg.subscriptionName, topic)
		}
		return &AzureReceiver{Receiver: r, client: client}, nil
	}

	r, err := client.NewReceiverForQueue(topic, cfg.receiverOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create receiver for queue %q", topic)
	}
	return &AzureReceiver{Receiver: r, client: client}, nil
}

func (r *AzureReceiver) Close(ctx context.Context) error {
	var lastErr error
	if err := r.Receiver.Close(ctx); err != nil {
		lastErr = errors.Wrap(err, "failed to close receiver")
	}
	if r.managedClient && r.client != nil {
		if err := r.client.Close(ctx); err != nil {
			lastErr = errors.Wrap(err, "failed to close client")
		}
	}
	return lastErr
}
