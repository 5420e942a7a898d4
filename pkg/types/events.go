package types

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

const EventSource string = "github.com/diwise/iot-gateway-monitor"

type ActivityRecorded struct {
	ActivityLog
}

func (a *ActivityRecorded) ContentType() string {
	return "application/json"
}

func (a *ActivityRecorded) TopicName() string {
	return "activity." + a.Action
}

func (a *ActivityRecorded) EventType() string {
	return "iot-gateway-monitor." + a.TopicName()
}

// CloudEvent wraps the activity in a structured mode event with the activity log id as event id.
func (a *ActivityRecorded) CloudEvent() (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(a.ID)
	event.SetSource(EventSource)
	event.SetType(a.EventType())
	event.SetTime(a.Timestamp)
	event.SetSubject(fmt.Sprintf("%s/%s", a.TargetType, a.TargetID))

	err := event.SetData(a.ContentType(), a.ActivityLog)
	if err != nil {
		return event, err
	}

	return event, event.Validate()
}

// DeviceLogMessage is published by a gateway with the readings of one device.
type DeviceLogMessage struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	List      []Reading  `json:"list"`
}

// FaultMessage is published by a gateway. DeviceID is the gateway local device id.
type FaultMessage struct {
	DeviceID    *int       `json:"deviceId,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Code        string     `json:"code"`
	Description string     `json:"description,omitempty"`
}

type DeviceStateMessage struct {
	State string `json:"state"`
}
