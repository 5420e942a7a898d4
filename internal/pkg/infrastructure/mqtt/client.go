package mqtt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidTopic     = errors.New("mqtt: topic cannot be empty")
)

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 5 * time.Second
	keepAlive         = 60 * time.Second
	disconnectQuiesce = uint(1000)
)

// MessageHandler is called on a paho goroutine for each received message.
type MessageHandler func(topic string, payload []byte) error

type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
}

func LoadConfigFromEnv(brokerURL string) Config {
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = "iot-gateway-monitor-" + uuid.NewString()[:8]
	}

	return Config{
		BrokerURL: brokerURL,
		ClientID:  clientID,
		Username:  os.Getenv("MQTT_USERNAME"),
		Password:  os.Getenv("MQTT_PASSWORD"),
		QoS:       1,
	}
}

type subscription struct {
	topic   string
	handler MessageHandler
}

// Client keeps track of its subscriptions and restores them when the connection
// to the broker is reestablished.
type Client struct {
	client pahomqtt.Client
	qos    byte
	log    zerolog.Logger

	mu            sync.RWMutex
	subscriptions map[string]subscription
}

func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	c := &Client{
		qos:           cfg.QoS,
		log:           log.With().Str("broker", cfg.BrokerURL).Logger(),
		subscriptions: map[string]subscription{},
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.log.Info().Msg("connected to mqtt broker")
		c.restoreSubscriptions()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Warn().Err(err).Msg("lost connection to mqtt broker")
	})

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !waitContext(ctx, token, connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, c.qos, c.wrap(handler))
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, subscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.log.Info().Str("topic", topic).Msg("subscribed")

	return nil
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(disconnectQuiesce)
	}
}

func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.subscriptions {
		c.client.Subscribe(s.topic, c.qos, c.wrap(s.handler))
	}
}

func (c *Client) wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Str("topic", msg.Topic()).Msgf("recovered from panic in message handler: %v", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log.Error().Err(err).Str("topic", msg.Topic()).Msg("failed to handle message")
		}
	}
}

func waitContext(ctx context.Context, token pahomqtt.Token, timeout time.Duration) bool {
	select {
	case <-token.Done():
		return true
	case <-ctx.Done():
		return false
	case <-time.After(timeout):
		return false
	}
}
