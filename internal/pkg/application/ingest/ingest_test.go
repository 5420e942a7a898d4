package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devicelogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/faults"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/projects"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestDeviceLogMessageIsStored(t *testing.T) {
	is, ctx, env := testSetup(t)

	payload := `{"timestamp":"2024-04-01T10:00:00Z","list":[{"name":"power","address":40001,"value":12.5,"unit":"kW"}]}`
	err := env.ingester.HandleDeviceLog(ctx, "gateways/GW1/devices/1/logs", []byte(payload))
	is.NoErr(err)

	latest, err := env.logs.Latest(ctx, env.device.ID)
	is.NoErr(err)
	is.Equal(latest.GatewayID, env.device.GatewayID)
	is.Equal(latest.List[0].Unit, "kW")
	is.Equal(latest.Timestamp.Hour(), 10)
}

func TestMessagesFromUnknownSourcesAreDropped(t *testing.T) {
	is, ctx, env := testSetup(t)

	err := env.ingester.HandleDeviceLog(ctx, "gateways/GW9/devices/1/logs", []byte(`{"list":[]}`))
	is.True(errors.Is(err, gateways.ErrGatewayNotFound))

	err = env.ingester.HandleDeviceLog(ctx, "gateways/GW1/devices/9/logs", []byte(`{"list":[]}`))
	is.True(errors.Is(err, devices.ErrDeviceNotFound))

	result, err := env.logs.Query(ctx, devicelogs.Filter{}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(result.TotalElement, int64(0))
}

func TestMalformedMessagesAreRejected(t *testing.T) {
	is, ctx, env := testSetup(t)

	err := env.ingester.HandleDeviceLog(ctx, "gateways/GW1/devices/one/logs", []byte(`{}`))
	is.True(errors.Is(err, ErrMalformedTopic))

	err = env.ingester.HandleDeviceLog(ctx, "gateways/GW1/logs", []byte(`{}`))
	is.True(errors.Is(err, ErrMalformedTopic))

	err = env.ingester.HandleFault(ctx, "gateways/GW1/faults", []byte(`not json`))
	is.True(errors.Is(err, ErrMalformedPayload))
}

func TestFaultMessageResolvesDevice(t *testing.T) {
	is, ctx, env := testSetup(t)

	err := env.ingester.HandleFault(ctx, "gateways/GW1/faults", []byte(`{"deviceId":1,"code":"E7","description":"no response"}`))
	is.NoErr(err)

	err = env.ingester.HandleFault(ctx, "gateways/GW1/faults", []byte(`{"code":"E8"}`))
	is.NoErr(err)

	result, err := env.faults.Query(ctx, faults.Filter{DeviceID: env.device.ID}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(result.TotalElement, int64(1))
	is.Equal(result.Content[0].Code, "E7")

	result, err = env.faults.Query(ctx, faults.Filter{GatewayID: env.device.GatewayID}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(result.TotalElement, int64(2))
}

func TestDeviceStateMessageUpdatesDevice(t *testing.T) {
	is, ctx, env := testSetup(t)

	handlers := env.ingester.Handlers(ctx)
	is.Equal(len(handlers), 3)

	err := handlers[DeviceStateTopic]("gateways/GW1/devices/1/state", []byte(`{"state":"offline"}`))
	is.NoErr(err)

	d, err := env.devices.GetByID(ctx, env.device.ID)
	is.NoErr(err)
	is.Equal(d.State, "offline")

	opts := database.QueryOptions{SortBy: database.ParseSortBy("createdAt:desc"), PageSize: 1}
	logs, err := env.activity.Query(ctx, activitylogs.Filter{}, opts)
	is.NoErr(err)
	is.Equal(logs.Content[0].Action, "update")
	is.Equal(logs.Content[0].Actor, "gateway/GW1")
}

type environment struct {
	ingester Ingester
	devices  devices.Devices
	logs     devicelogs.DeviceLogs
	faults   faults.Faults
	activity activitylogs.ActivityLogs
	device   types.Device
}

func testSetup(t *testing.T) (*is.I, context.Context, environment) {
	is := is.New(t)
	ctx := context.Background()

	db, err := database.Connect(database.NewSQLiteConnector(zerolog.Nop()))
	is.NoErr(err)

	activity := activitylogs.New(database.NewStore[database.ActivityLog](db, database.ActivityLogSchema))
	p := projects.New(database.NewStore[database.Project](db, database.ProjectSchema), activity)
	g := gateways.New(database.NewStore[database.Gateway](db, database.GatewaySchema), p, activity)
	d := devices.New(database.NewStore[database.Device](db, database.DeviceSchema), g, activity)
	l := devicelogs.New(database.NewStore[database.DeviceLog](db, database.DeviceLogSchema), d)
	f := faults.New(database.NewStore[database.Fault](db, database.FaultSchema), g, d)

	project, err := p.Create(ctx, types.CreateProject{Name: "P"})
	is.NoErr(err)

	gw, err := g.Create(ctx, types.CreateGateway{ProjectID: project.ID, GatewayID: "GW1", Name: "Gateway A"})
	is.NoErr(err)

	unit := 1
	device, err := d.Create(ctx, types.CreateDevice{GatewayID: gw.ID, Type: "INVERTER", DeviceID: &unit})
	is.NoErr(err)

	return is, ctx, environment{
		ingester: New(g, d, l, f),
		devices:  d,
		logs:     l,
		faults:   f,
		activity: activity,
		device:   device,
	}
}
