package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/amqp"
	"github.com/velmie/beetle/config"
	"github.com/velmie/beetle/otelbeetle"
)

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a message to the configured brokers",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			exchange, _ := cmd.Flags().GetString("exchange")
			key, _ := cmd.Flags().GetString("routing-key")
			body, _ := cmd.Flags().GetString("body")
			id, _ := cmd.Flags().GetString("id")
			redundant, _ := cmd.Flags().GetBool("redundant")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log, os.Stderr)

			var channels []amqp.PublishChannel
			for i, url := range cfg.AMQP.URLs {
				conn, err := amqp091.Dial(url)
				if err != nil {
					log.Warn("Broker unavailable", "broker", i, "error", err)
					continue
				}
				defer conn.Close()
				ch, err := conn.Channel()
				if err != nil {
					log.Warn("Cannot open channel", "broker", i, "error", err)
					continue
				}
				channels = append(channels, ch)
			}

			publisher := otelbeetle.PublisherMiddleware()(
				amqp.NewPublisher(exchange, channels, amqp.WithPublisherLogger(log)),
			)

			msg := beetle.NewMessage()
			msg.ID = id
			msg.Body = []byte(body)
			msg.SetContext(cmd.Context())
			options := []beetle.PublishOption{beetle.WithTTL(ttl)}
			if redundant {
				options = append(options, beetle.Redundant())
			}
			if err := publisher.Publish(key, msg, options...); err != nil {
				return errors.Wrap(err, "cannot publish message")
			}
			log.Info("Message published", "messageId", msg.ID, "routingKey", key, "redundant", redundant)
			return nil
		},
	}
	cmd.Flags().String("exchange", "", "exchange to publish to, the default exchange routes by queue name")
	cmd.Flags().StringP("routing-key", "k", "", "routing key")
	cmd.Flags().String("body", "", "message body")
	cmd.Flags().String("id", "", "message id, generated when empty")
	cmd.Flags().Bool("redundant", true, "publish a copy to every broker")
	cmd.Flags().Duration("ttl", beetle.DefaultTTL, "message time to live")
	_ = cmd.MarkFlagRequired("routing-key")
	return cmd
}
