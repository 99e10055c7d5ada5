package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

type Config struct {
	Broker   string
	ClientID string
	User     string
	Password string
}

// Client wraps a paho client shared by the motion source and the notifier.
// Subscriptions are remembered and sent again after every (re)connect, since
// the broker drops them with the clean session.
type Client struct {
	client paho.Client
	broker string
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]func(topic string, payload []byte)
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}

	c := &Client{
		broker:   cfg.Broker,
		logger:   logger,
		handlers: make(map[string]func(string, []byte)),
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(pc paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
		c.resubscribe(pc)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connected reports whether the network connection is up. paho keeps
// IsConnected true while it is retrying in the background.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	handlers := make(map[string]func(string, []byte), len(c.handlers))
	for topic, h := range c.handlers {
		handlers[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range handlers {
		token := pc.Subscribe(topic, 0, messageHandler(h))
		if err := wait(context.Background(), token, connectTimeout); err != nil {
			c.logger.Error("mqtt resubscribe failed", "topic", topic, "error", err)
			continue
		}
		c.logger.Info("mqtt resubscribed", "topic", topic)
	}
}

func messageHandler(handler func(topic string, payload []byte)) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	}
}

// Connect is a no-op when the client is already connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.client.IsConnected() {
		return nil
	}

	token := c.client.Connect()
	if err := wait(ctx, token, connectTimeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", c.broker, err)
	}
	return nil
}

func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, 0, messageHandler(handler))
	if err := wait(context.Background(), token, connectTimeout); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	c.logger.Info("mqtt subscribed", "topic", topic)
	return nil
}

func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.handlers, topic)
	c.mu.Unlock()

	token := c.client.Unsubscribe(topic)
	if err := wait(context.Background(), token, connectTimeout); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	token := c.client.Publish(topic, 1, false, data)
	if err := wait(context.Background(), token, publishTimeout); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
