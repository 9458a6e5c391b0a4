package rabbitmq

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one message received on a subscription.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages to a handler until ctx is done.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// Consumer subscribes to one or more topic filters on a shared client.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
	logger  *zap.Logger
}

// NewConsumer creates a Consumer; handler may be nil and injected later with SetHandler.
func NewConsumer(client mqtt.Client, handler Handler, logger *zap.Logger, topics ...string) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		client:  client,
		topics:  topics,
		handler: handler,
		logger:  logger,
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// ConsumeMessage subscribes to every topic and blocks until ctx is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range c.topics {
		topic := topic
		token := c.client.Subscribe(topic, qosFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				c.logger.Warn("no handler set", zap.String("topic", topic))
				return
			}
			if err := c.handler(topic, msg); err != nil {
				c.logger.Error("error handling message", zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		if token.Wait() && token.Error() != nil {
			c.logger.Error("error subscribing", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		c.logger.Info("subscribed", zap.String("topic", topic))
	}

	<-ctx.Done()

	if len(c.topics) > 0 {
		c.client.Unsubscribe(c.topics...).Wait()
	}
}
