package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"golang.org/x/sys/unix"
)

// ActivityNotification is the notification type that subscribes to all recorded activities.
const ActivityNotification string = "iot-gateway-monitor.activity"

// EventSender delivers activities as cloud events to the http endpoints configured for
// matching notification types.
type EventSender interface {
	Publish(ctx context.Context, activity types.ActivityLog) error
}

type eventSender struct {
	subscribers map[string][]SubscriberConfig
	client      cloudevents.Client
}

func New(cfg *Config) (EventSender, error) {
	e := &eventSender{
		subscribers: make(map[string][]SubscriberConfig),
	}

	if cfg != nil {
		for _, s := range cfg.Notifications {
			e.subscribers[s.Type] = append(e.subscribers[s.Type], s.Subscribers...)
		}
	}

	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}
	e.client = c

	return e, nil
}

// Publish sends the activity to subscribers of the generic activity notification and to
// subscribers of the action specific type, e.g. iot-gateway-monitor.activity.create.
func (e *eventSender) Publish(ctx context.Context, activity types.ActivityLog) error {
	msg := &types.ActivityRecorded{ActivityLog: activity}

	endpoints := e.endpointsFor(msg.EventType())
	if len(endpoints) == 0 {
		return nil
	}

	event, err := msg.CloudEvent()
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	var errs []error
	for _, endpoint := range endpoints {
		ctxWithTarget := cloudevents.ContextWithTarget(ctx, endpoint)

		result := e.client.Send(ctxWithTarget, event)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			logger.Error().Err(result).Msgf("failed to send event to %s", endpoint)
			errs = append(errs, fmt.Errorf("%s: %w", endpoint, result))
		}
	}

	return errors.Join(errs...)
}

func (e *eventSender) endpointsFor(eventType string) []string {
	endpoints := []string{}
	seen := map[string]bool{}

	for notificationType, subscribers := range e.subscribers {
		if notificationType != eventType && !strings.HasPrefix(eventType, notificationType+".") {
			continue
		}

		for _, s := range subscribers {
			if !seen[s.Endpoint] {
				seen[s.Endpoint] = true
				endpoints = append(endpoints, s.Endpoint)
			}
		}
	}

	return endpoints
}

type SubscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type Notification struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []Notification `yaml:"notifications"`
}
