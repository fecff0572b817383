package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/amqp"
	"github.com/velmie/beetle/config"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/otelbeetle"
)

const errorDelay = time.Second

func newConsumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume a queue from every configured broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			queue, _ := cmd.Flags().GetString("queue")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return consume(ctx, cfg, queue, newLogger(cfg.Log, os.Stdout))
		},
	}
	cmd.Flags().StringP("queue", "q", "", "queue to consume")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

func consume(ctx context.Context, cfg *config.Config, queue string, log *slog.Logger) error {
	log.Info("Starting consumer",
		"queue", queue,
		"brokers", len(cfg.AMQP.URLs),
		"store", cfg.Store.Type,
		"maxAttempts", cfg.Dedup.MaxAttempts,
	)

	store, release, err := openStore(cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			log.Error("Failed to close status store", "error", err)
		}
	}()
	if err := pingStore(ctx, store); err != nil {
		return err
	}

	recorder, err := otelbeetle.NewDecisionRecorder(otelbeetle.NewMeter(otel.GetMeterProvider()))
	if err != nil {
		return err
	}
	dedupOptions := append(cfg.Dedup.Options(),
		dedup.WithObserver(recorder.Observe),
	)

	handler := beetle.Chain(
		handleMessage(log),
		otelbeetle.ConsumerMiddleware(),
		beetle.LoggingMiddleware(log, beetle.WithLogBodyOnError(true)),
		beetle.PanicRecoveryMiddleware(),
	)

	coordinator := beetle.NewCoordinator(log)
	resubscribe := coordinator.ResubscribeErrorHandler(
		beetle.ResubscribeWithDelayBetweenSubscriptionAttempts(cfg.AMQP.ReconnectDelay),
	)
	subscribeOptions := []beetle.SubscribeOption{
		beetle.WithLogger(log),
		beetle.WithErrorHandler(beetle.CombineErrorHandlers(
			beetle.LogErrorHandler(log),
			beetle.DelayErrorHandler(errorDelay, log),
			resubscribe,
		)),
	}
	if !cfg.AMQP.RejectAndRequeue {
		subscribeOptions = append(subscribeOptions, beetle.DiscardOnReject())
	}

	var brokers []*broker
	defer func() {
		for _, b := range brokers {
			b.close()
		}
	}()
	for i, url := range cfg.AMQP.URLs {
		i := i
		b := &broker{url: url}
		brokers = append(brokers, b)
		subscribe := func(context.Context) (beetle.Subscription, error) {
			ch, err := b.channel()
			if err != nil {
				return nil, errors.Wrapf(err, "broker %d", i)
			}
			subscriber := amqp.NewSubscriber(ch, store,
				amqp.WithBatchSize(cfg.AMQP.BatchSize),
				amqp.WithBatchWait(cfg.AMQP.BatchWait),
				amqp.WithPrefetch(cfg.AMQP.Prefetch),
				amqp.WithDedupOptions(dedupOptions...),
			)
			return subscriber.Subscribe(queue, handler, subscribeOptions...)
		}
		if err := coordinator.Add(fmt.Sprintf("broker-%d/%s", i, queue), subscribe); err != nil {
			return err
		}
	}

	if err := coordinator.Start(ctx); err != nil {
		return err
	}
	log.Info("Consumer started", "queue", queue)

	<-ctx.Done()
	log.Info("Shutting down consumer")
	coordinator.Stop()
	return nil
}

// handleMessage is the handler of the consume command, it reports every message it receives.
func handleMessage(log *slog.Logger) beetle.Handler {
	return func(e beetle.Event) error {
		msg := e.Message()
		log.Debug("Message received",
			"topic", e.Topic(),
			"messageId", msg.ID,
			"size", len(msg.Body),
		)
		return nil
	}
}

// broker holds the connection to one of the redundant brokers, channel redials
// when the previous connection was closed.
type broker struct {
	url  string
	mu   sync.Mutex
	conn *amqp091.Connection
}

func (b *broker) channel() (*amqp091.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		conn, err := amqp091.Dial(b.url)
		if err != nil {
			return nil, errors.Wrap(err, "cannot connect")
		}
		b.conn = conn
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "cannot open channel")
	}
	return ch, nil
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}
