// Package rabbitmqtest provides in-memory doubles for the rabbitmq package.
package rabbitmqtest

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

// Token is an already-completed mqtt.Token.
type Token struct {
	Err error
}

func (t *Token) Wait() bool                       { return true }
func (t *Token) WaitTimeout(_ time.Duration) bool { return true }
func (t *Token) Error() error                     { return t.Err }
func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Message is a static mqtt.Message.
type Message struct {
	TopicName string
	Body      []byte
	QoS       byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return m.QoS }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}

// Published records one publish call.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client is a fake mqtt.Client that records publishes and keeps subscription callbacks.
// Methods not overridden panic through the nil embedded interface.
type Client struct {
	mqtt.Client

	mu         sync.Mutex
	Connected  bool
	PublishErr error
	Published  []Published
	handlers   map[string]mqtt.MessageHandler
}

func NewClient() *Client {
	return &Client{Connected: true, handlers: map[string]mqtt.MessageHandler{}}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Connected
}

func (c *Client) Disconnect(_ uint) {
	c.mu.Lock()
	c.Connected = false
	c.mu.Unlock()
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return &Token{Err: c.PublishErr}
	}
	var body []byte
	switch p := payload.(type) {
	case string:
		body = []byte(p)
	case []byte:
		body = p
	}
	c.Published = append(c.Published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: body})
	return &Token{}
}

func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.handlers[topic] = callback
	c.mu.Unlock()
	return &Token{}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.mu.Unlock()
	return &Token{}
}

// Subscribed reports whether a callback is registered for the filter.
func (c *Client) Subscribed(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[filter]
	return ok
}

// Deliver invokes the callback registered for filter with a message on topic.
func (c *Client) Deliver(filter, topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[filter]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, &Message{TopicName: topic, Body: payload})
	return true
}

// Publisher is a fake rabbitmq.IPublisher.
type Publisher struct {
	mu       sync.Mutex
	Topic    string
	Err      error
	Messages []Published
	Closed   bool
}

var _ rabbitmq.IPublisher = (*Publisher)(nil)

func (p *Publisher) PublishMessage(message interface{}) error {
	return p.PublishToQos(p.Topic, 0, false, message)
}

func (p *Publisher) PublishToQos(topic string, qos byte, retained bool, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	var body []byte
	switch m := message.(type) {
	case string:
		body = []byte(m)
	case []byte:
		body = m
	}
	p.Messages = append(p.Messages, Published{Topic: topic, QoS: qos, Retained: retained, Payload: body})
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	p.Closed = true
	p.mu.Unlock()
}

func (p *Publisher) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

// Sent returns a copy of the recorded messages.
func (p *Publisher) Sent() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.Messages))
	copy(out, p.Messages)
	return out
}

// Consumer is a fake rabbitmq.IConsumer driven by Deliver.
type Consumer struct {
	mu      sync.Mutex
	handler rabbitmq.Handler
}

var _ rabbitmq.IConsumer = (*Consumer)(nil)

func (c *Consumer) SetHandler(handler rabbitmq.Handler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

func (c *Consumer) ConsumeMessage(ctx context.Context) {
	<-ctx.Done()
}

// Deliver passes a message to the installed handler.
func (c *Consumer) Deliver(topic string, payload []byte) error {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(topic, &Message{TopicName: topic, Body: payload})
}
