package application

import (
	"context"
	"strings"
	"testing"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/dashboard"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/projects"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

const configYaml string = `
dashboard:
  concurrency: 8
watchdog:
  interval: 30
  staleAfter: 900
notifications:
  - id: activities
    name: All recorded activities
    type: iot-gateway-monitor.activity
    subscribers:
    - endpoint: http://activity-sink:8990
projects:
  - name: Solar park
    description: rooftop inverters
    gateways:
      - gatewayId: GW-001
        name: Roof A
        settings:
          refreshDataAfterTime: 30
        devices:
          - deviceId: 1
            type: INVERTER
            name: inverter 1
            ipAddress: 10.0.0.11
            port: 502
          - deviceId: 2
            type: METER
`

func TestConfig(t *testing.T) {
	is := is.New(t)

	cfg, err := LoadConfiguration(strings.NewReader(configYaml))
	is.NoErr(err)

	is.Equal(cfg.Dashboard.Concurrency, 8)
	is.Equal(cfg.Watchdog.StaleAfter, 900)
	is.True(cfg.Watchdog.Enabled())
	is.Equal(len(cfg.Notifications), 1)
	is.Equal(cfg.Notifications[0].Subscribers[0].Endpoint, "http://activity-sink:8990")
	is.Equal(len(cfg.Projects), 1)
	is.Equal(cfg.Projects[0].Gateways[0].Settings.RefreshDataAfterTime, 30)
	is.Equal(len(cfg.Projects[0].Gateways[0].Devices), 2)
}

func TestBrokenConfigIsAnError(t *testing.T) {
	is := is.New(t)

	_, err := LoadConfiguration(strings.NewReader("dashboard: [1, 2"))
	is.True(err != nil)
}

func TestSeedIsIdempotent(t *testing.T) {
	is, ctx, app := setupTest(t)

	cfg, err := LoadConfiguration(strings.NewReader(configYaml))
	is.NoErr(err)

	is.NoErr(app.Seed(ctx, cfg.Projects))
	is.NoErr(app.Seed(ctx, cfg.Projects))

	p, err := app.Projects.Query(ctx, projects.Filter{}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(p.TotalElement, int64(1))

	gw, err := app.Gateways.GetByGatewayID(ctx, "GW-001")
	is.NoErr(err)
	is.Equal(gw.Settings.RefreshDataAfterTime, 30)

	d, err := app.Devices.Query(ctx, devices.Filter{GatewayID: gw.ID}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(d.TotalElement, int64(2))

	logs, err := app.ActivityLogs.Query(ctx, activitylogs.Filter{}, database.QueryOptions{PageSize: 1})
	is.NoErr(err)
	is.Equal(logs.Content[0].Actor, seedActor)
}

func TestSeededGatewayIsOnDashboard(t *testing.T) {
	is, ctx, app := setupTest(t)

	cfg, err := LoadConfiguration(strings.NewReader(configYaml))
	is.NoErr(err)
	is.NoErr(app.Seed(ctx, cfg.Projects))

	result, err := app.Dashboard.Overview(ctx, dashboard.Filter{GatewayID: "GW-001"}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(len(result.Content), 1)
	is.Equal(len(result.Content[0].Devices), 2)
	is.Equal(len(result.Content[0].Devices[0].DataList), 0)
}

func setupTest(t *testing.T) (*is.I, context.Context, *App) {
	is := is.New(t)

	db, err := database.Connect(database.NewSQLiteConnector(zerolog.Nop()))
	is.NoErr(err)

	return is, context.Background(), New(db, &Config{}, nil)
}
