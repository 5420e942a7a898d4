package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devicelogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/faults"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-gateway-monitor/ingest")

var ErrMalformedTopic = errors.New("malformed topic")
var ErrMalformedPayload = errors.New("malformed payload")

const (
	DeviceLogTopic   string = "gateways/+/devices/+/logs"
	FaultTopic       string = "gateways/+/faults"
	DeviceStateTopic string = "gateways/+/devices/+/state"
)

// Handler has the signature of a message broker callback.
type Handler func(topic string, payload []byte) error

// Ingester turns messages published by gateways into device logs, faults and device state
// changes. Gateways are addressed by their own gatewayId and devices by their unit id.
type Ingester interface {
	Handlers(ctx context.Context) map[string]Handler

	HandleDeviceLog(ctx context.Context, topic string, payload []byte) error
	HandleFault(ctx context.Context, topic string, payload []byte) error
	HandleDeviceState(ctx context.Context, topic string, payload []byte) error
}

type ingester struct {
	gateways gateways.Gateways
	devices  devices.Devices
	logs     devicelogs.DeviceLogs
	faults   faults.Faults
}

func New(g gateways.Gateways, d devices.Devices, l devicelogs.DeviceLogs, f faults.Faults) Ingester {
	return &ingester{
		gateways: g,
		devices:  d,
		logs:     l,
		faults:   f,
	}
}

func (i *ingester) Handlers(ctx context.Context) map[string]Handler {
	bind := func(h func(context.Context, string, []byte) error) Handler {
		return func(topic string, payload []byte) error {
			return h(ctx, topic, payload)
		}
	}

	return map[string]Handler{
		DeviceLogTopic:   bind(i.HandleDeviceLog),
		FaultTopic:       bind(i.HandleFault),
		DeviceStateTopic: bind(i.HandleDeviceState),
	}
}

func (i *ingester) HandleDeviceLog(ctx context.Context, topic string, payload []byte) error {
	ctx, span := tracer.Start(ctx, "ingest-device-log")
	defer span.End()

	gatewayID, unitID, err := parseDeviceTopic(topic, "logs")
	if err != nil {
		return err
	}

	msg := types.DeviceLogMessage{}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}

	device, err := i.device(ctx, gatewayID, unitID)
	if err != nil {
		return err
	}

	l, err := i.logs.Create(ctx, types.CreateDeviceLog{
		DeviceID:  device.ID,
		Timestamp: msg.Timestamp,
		List:      msg.List,
	})
	if err != nil {
		return err
	}

	log := logging.GetFromContext(ctx)
	log.Debug().
		Str("gateway_id", gatewayID).
		Int("device_id", unitID).
		Int("readings", len(l.List)).
		Msg("stored device log")

	return nil
}

func (i *ingester) HandleFault(ctx context.Context, topic string, payload []byte) error {
	ctx, span := tracer.Start(ctx, "ingest-fault")
	defer span.End()

	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "gateways" || parts[2] != "faults" || parts[1] == "" {
		return fmt.Errorf("%w: %s", ErrMalformedTopic, topic)
	}
	gatewayID := parts[1]

	msg := types.FaultMessage{}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}

	gw, err := i.gateways.GetByGatewayID(ctx, gatewayID)
	if err != nil {
		return fmt.Errorf("dropping fault from %s: %w", gatewayID, err)
	}

	req := types.CreateFault{
		GatewayID:   gw.ID,
		Timestamp:   msg.Timestamp,
		Code:        msg.Code,
		Description: msg.Description,
	}

	if msg.DeviceID != nil {
		device, err := i.devices.GetByUnit(ctx, gw.ID, *msg.DeviceID)
		if err != nil {
			return fmt.Errorf("dropping fault from %s/%d: %w", gatewayID, *msg.DeviceID, err)
		}
		req.DeviceID = device.ID
	}

	_, err = i.faults.Create(ctx, req)
	return err
}

func (i *ingester) HandleDeviceState(ctx context.Context, topic string, payload []byte) error {
	ctx, span := tracer.Start(ctx, "ingest-device-state")
	defer span.End()

	gatewayID, unitID, err := parseDeviceTopic(topic, "state")
	if err != nil {
		return err
	}

	msg := types.DeviceStateMessage{}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}

	device, err := i.device(ctx, gatewayID, unitID)
	if err != nil {
		return err
	}

	if device.State == msg.State {
		return nil
	}

	ctx = activitylogs.WithActor(ctx, "gateway/"+gatewayID)
	_, err = i.devices.Update(ctx, device.ID, types.UpdateDevice{State: &msg.State})

	return err
}

func (i *ingester) device(ctx context.Context, gatewayID string, unitID int) (types.Device, error) {
	gw, err := i.gateways.GetByGatewayID(ctx, gatewayID)
	if err != nil {
		return types.Device{}, fmt.Errorf("dropping message from %s: %w", gatewayID, err)
	}

	device, err := i.devices.GetByUnit(ctx, gw.ID, unitID)
	if err != nil {
		return types.Device{}, fmt.Errorf("dropping message from %s/%d: %w", gatewayID, unitID, err)
	}

	return device, nil
}

// parseDeviceTopic extracts the ids from gateways/{gatewayId}/devices/{deviceId}/{kind}
func parseDeviceTopic(topic, kind string) (string, int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "gateways" || parts[2] != "devices" || parts[4] != kind || parts[1] == "" {
		return "", 0, fmt.Errorf("%w: %s", ErrMalformedTopic, topic)
	}

	unitID, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, fmt.Errorf("%w: device id %q is not an integer", ErrMalformedTopic, parts[3])
	}

	return parts[1], unitID, nil
}
