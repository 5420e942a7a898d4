package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devicelogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/faults"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("iot-gateway-monitor/dashboard")

const DefaultConcurrency int = 4

type Config struct {
	Concurrency int `yaml:"concurrency"`
}

// Filter selects the gateways to aggregate. GatewayID matches either the internal id or the
// gateway supplied gatewayId, empty aggregates all gateways.
type Filter struct {
	GatewayID string
}

// Observer is told how long each aggregation took.
type Observer func(d time.Duration, err error)

type Dashboard interface {
	Overview(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.DashboardGateway], error)
}

type dashboard struct {
	gateways    gateways.Gateways
	devices     devices.Devices
	logs        devicelogs.DeviceLogs
	faults      faults.Faults
	concurrency int
	observe     Observer
}

func New(g gateways.Gateways, d devices.Devices, l devicelogs.DeviceLogs, f faults.Faults, cfg Config, observe Observer) Dashboard {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	if observe == nil {
		observe = func(time.Duration, error) {}
	}

	return &dashboard{
		gateways:    g,
		devices:     d,
		logs:        l,
		faults:      f,
		concurrency: concurrency,
		observe:     observe,
	}
}

// Overview pages the gateways and joins in their devices, the latest readings of each device
// and their faults. Devices and faults are paged with the same options as the gateways.
func (db *dashboard) Overview(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.DashboardGateway], error) {
	var err error
	ctx, span := tracer.Start(ctx, "dashboard-overview")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	start := time.Now()
	defer func() { db.observe(time.Since(start), err) }()

	gws, err := db.gateways.Query(ctx, gateways.Filter{Identifier: filter.GatewayID}, opts)
	if err != nil {
		return types.Collection[types.DashboardGateway]{}, err
	}

	result := make([]types.DashboardGateway, len(gws.Content))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.concurrency)

	for i, gw := range gws.Content {
		i, gw := i, gw
		g.Go(func() error {
			entry, err := db.gateway(gctx, gw, opts)
			if err != nil {
				return err
			}
			result[i] = entry
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		log := logging.GetFromContext(ctx)
		log.Error().Err(err).Msg("dashboard aggregation failed")
		return types.Collection[types.DashboardGateway]{}, err
	}

	return types.Collection[types.DashboardGateway]{
		Content:      result,
		CurrentPage:  gws.CurrentPage,
		PageSize:     gws.PageSize,
		TotalPage:    gws.TotalPage,
		TotalElement: gws.TotalElement,
	}, nil
}

func (db *dashboard) gateway(ctx context.Context, gw types.Gateway, opts database.QueryOptions) (types.DashboardGateway, error) {
	entry := types.DashboardGateway{
		Gateway: gw,
		Devices: []types.DashboardDevice{},
		Faults:  []types.Fault{},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		devs, err := db.deviceEntries(gctx, gw.ID, opts)
		if err != nil {
			return err
		}
		entry.Devices = devs
		return nil
	})

	g.Go(func() error {
		fs, err := db.faults.Query(gctx, faults.Filter{GatewayID: gw.ID}, opts)
		if err != nil {
			return err
		}
		entry.Faults = fs.Content
		return nil
	})

	err := g.Wait()
	return entry, err
}

func (db *dashboard) deviceEntries(ctx context.Context, gatewayID string, opts database.QueryOptions) ([]types.DashboardDevice, error) {
	devs, err := db.devices.Query(ctx, devices.Filter{GatewayID: gatewayID}, opts)
	if err != nil {
		return nil, err
	}

	entries := make([]types.DashboardDevice, len(devs.Content))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.concurrency)

	for i, d := range devs.Content {
		i, d := i, d
		g.Go(func() error {
			dataList := []types.Reading{}

			latest, err := db.logs.Latest(gctx, d.ID)
			if err == nil {
				dataList = latest.List
			} else if !errors.Is(err, devicelogs.ErrDeviceLogNotFound) {
				return err
			}

			entries[i] = types.DashboardDevice{Device: d, DataList: dataList}
			return nil
		})
	}

	return entries, g.Wait()
}
