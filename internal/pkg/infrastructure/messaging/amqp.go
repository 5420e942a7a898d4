package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange string = "iot-gateway-monitor"
	contentType     string = "application/cloudevents+json"
)

type Config struct {
	URL      string
	Exchange string
}

func LoadConfiguration(url string) Config {
	return Config{
		URL:      url,
		Exchange: DefaultExchange,
	}
}

// Publisher sends activities as structured cloud events to a topic exchange, routed by
// activity.<action>.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	log := logging.GetFromContext(ctx)

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to message broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	log.Info().Str("exchange", cfg.Exchange).Msg("connected to message broker")

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, activity types.ActivityLog) error {
	routingKey, msg, err := newPublishing(activity)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}

	return p.conn.Close()
}

func newPublishing(activity types.ActivityLog) (string, amqp.Publishing, error) {
	msg := &types.ActivityRecorded{ActivityLog: activity}

	event, err := msg.CloudEvent()
	if err != nil {
		return "", amqp.Publishing{}, err
	}

	body, err := event.MarshalJSON()
	if err != nil {
		return "", amqp.Publishing{}, err
	}

	return msg.TopicName(), amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    activity.ID,
		Timestamp:    activity.Timestamp,
		Type:         msg.EventType(),
		Body:         body,
	}, nil
}
