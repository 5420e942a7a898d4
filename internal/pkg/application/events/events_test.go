package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/matryer/is"
)

func TestPublishSendsToMatchingSubscribers(t *testing.T) {
	is := is.New(t)

	received := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r.Header.Get("Ce-Type") + " " + string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Notifications: []Notification{
			{ID: "all", Type: ActivityNotification, Subscribers: []SubscriberConfig{{Endpoint: server.URL}}},
			{ID: "deletes", Type: ActivityNotification + ".delete", Subscribers: []SubscriberConfig{{Endpoint: server.URL + "/deletes"}}},
		},
	}

	sender, err := New(cfg)
	is.NoErr(err)

	err = sender.Publish(context.Background(), activity("create"))
	is.NoErr(err)

	is.Equal(len(received), 1) // only the generic subscriber wants creates
	msg := <-received
	is.True(len(msg) > 0)
	is.Equal(msg[:len("iot-gateway-monitor.activity.create")], "iot-gateway-monitor.activity.create")

	err = sender.Publish(context.Background(), activity("delete"))
	is.NoErr(err)
	is.Equal(len(received), 2)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	is := is.New(t)

	sender, err := New(nil)
	is.NoErr(err)

	is.NoErr(sender.Publish(context.Background(), activity("create")))
}

func TestPublishToUnreachableEndpointFails(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	sender, err := New(&Config{
		Notifications: []Notification{
			{Type: ActivityNotification, Subscribers: []SubscriberConfig{{Endpoint: url}}},
		},
	})
	is.NoErr(err)

	err = sender.Publish(context.Background(), activity("update"))
	is.True(err != nil)
}

func activity(action string) types.ActivityLog {
	return types.ActivityLog{
		ID:         "a1b2",
		Actor:      "alice",
		Action:     action,
		TargetType: "gateway",
		TargetID:   "g1",
		Timestamp:  time.Now().UTC(),
	}
}
