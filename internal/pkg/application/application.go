package application

import (
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/dashboard"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devicelogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/faults"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/ingest"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/projects"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/watchdog"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"gorm.io/gorm"
)

// App holds the services of the monitor, all backed by the same database.
type App struct {
	Projects     projects.Projects
	Gateways     gateways.Gateways
	Devices      devices.Devices
	DeviceLogs   devicelogs.DeviceLogs
	Faults       faults.Faults
	ActivityLogs activitylogs.ActivityLogs
	Dashboard    dashboard.Dashboard
	Ingester     ingest.Ingester
	Watchdog     watchdog.Watchdog
}

func New(db *gorm.DB, cfg *Config, observe dashboard.Observer, publishers ...activitylogs.Publisher) *App {
	if cfg == nil {
		cfg = &Config{}
	}

	activity := activitylogs.New(database.NewStore[database.ActivityLog](db, database.ActivityLogSchema), publishers...)
	p := projects.New(database.NewStore[database.Project](db, database.ProjectSchema), activity)
	g := gateways.New(database.NewStore[database.Gateway](db, database.GatewaySchema), p, activity)
	d := devices.New(database.NewStore[database.Device](db, database.DeviceSchema), g, activity)
	l := devicelogs.New(database.NewStore[database.DeviceLog](db, database.DeviceLogSchema), d)
	f := faults.New(database.NewStore[database.Fault](db, database.FaultSchema), g, d)

	return &App{
		Projects:     p,
		Gateways:     g,
		Devices:      d,
		DeviceLogs:   l,
		Faults:       f,
		ActivityLogs: activity,
		Dashboard:    dashboard.New(g, d, l, f, cfg.Dashboard, observe),
		Ingester:     ingest.New(g, d, l, f),
		Watchdog:     watchdog.New(d, l, cfg.Watchdog),
	}
}
