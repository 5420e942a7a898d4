package mqtt

import (
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestWrappedHandlerReceivesTopicAndPayload(t *testing.T) {
	is := is.New(t)
	c := &Client{log: zerolog.Nop()}

	var topic, payload string
	h := c.wrap(func(t string, p []byte) error {
		topic, payload = t, string(p)
		return errors.New("logged, not returned")
	})

	h(nil, message{topic: "gateways/gw-1/faults", payload: []byte(`{"code":"E1"}`)})

	is.Equal(topic, "gateways/gw-1/faults")
	is.Equal(payload, `{"code":"E1"}`)
}

func TestWrappedHandlerRecoversFromPanic(t *testing.T) {
	c := &Client{log: zerolog.Nop()}

	h := c.wrap(func(string, []byte) error {
		panic("boom")
	})

	h(nil, message{topic: "gateways/gw-1/faults"})
}

func TestSubscribeRequiresTopic(t *testing.T) {
	is := is.New(t)
	c := &Client{log: zerolog.Nop(), subscriptions: map[string]subscription{}}

	err := c.Subscribe("", func(string, []byte) error { return nil })
	is.True(errors.Is(err, ErrInvalidTopic))
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}
