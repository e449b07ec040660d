// Package mqttclient wraps the paho MQTT client for the live reading feed.
package mqttclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/healnexus/internal/models"
)

// DefaultTopic carries the live reading feed.
const DefaultTopic = "healnexus/health/current"

type Options struct {
	BrokerURL      string
	ClientID       string
	ConnectTimeout time.Duration
}

type Client struct {
	raw mqtt.Client
}

func New(opts Options) (*Client, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	o.SetAutoReconnect(true)
	c := mqtt.NewClient(o)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %s", opts.BrokerURL, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.BrokerURL, err)
	}
	return &Client{raw: c}, nil
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token := c.raw.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	token := c.raw.Subscribe(topic, qos, handler)
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	c.raw.Disconnect(250)
}

func (c *Client) String() string {
	return "MQTTClient"
}

// RawPublisher is the subset of Client that ReadingPublisher needs.
type RawPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ReadingPublisher publishes each reading as JSON on a topic. The last reading
// is retained so new subscribers see the current value immediately.
type ReadingPublisher struct {
	client RawPublisher
	topic  string
}

func NewReadingPublisher(client RawPublisher, topic string) *ReadingPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &ReadingPublisher{client: client, topic: topic}
}

func (p *ReadingPublisher) Publish(ctx context.Context, r models.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	if err := p.client.Publish(p.topic, b, 0, true); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}
