package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devicelogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	OfflineState string = "offline"
	Actor        string = "watchdog"

	DefaultInterval int = 60
	pageSize        int = 100
)

// Config is read from the configuration file. Intervals are given in seconds and a
// zero StaleAfter disables the watchdog.
type Config struct {
	Interval   int `yaml:"interval"`
	StaleAfter int `yaml:"staleAfter"`
}

func (c Config) Enabled() bool {
	return c.StaleAfter > 0
}

// Watchdog marks devices as offline when they have not delivered a log within the configured time.
type Watchdog interface {
	Start(ctx context.Context)
	Stop()
	Check(ctx context.Context) (int, error)
}

type watchdog struct {
	devices    devices.Devices
	logs       devicelogs.DeviceLogs
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(d devices.Devices, l devicelogs.DeviceLogs, cfg Config) Watchdog {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &watchdog{
		devices:    d,
		logs:       l,
		interval:   time.Duration(interval) * time.Second,
		staleAfter: time.Duration(cfg.StaleAfter) * time.Second,
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

func (w *watchdog) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *watchdog) run(ctx context.Context) {
	defer w.wg.Done()

	log := logging.GetFromContext(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			marked, err := w.Check(ctx)
			if err != nil {
				log.Error().Err(err).Msg("could not check devices")
			}
			if marked > 0 {
				log.Info().Int("devices", marked).Msg("marked devices as offline")
			}
		}
	}
}

// Check pages through all devices once and returns the number of devices marked offline.
func (w *watchdog) Check(ctx context.Context) (int, error) {
	ctx = activitylogs.WithActor(ctx, Actor)
	threshold := w.now().Add(-w.staleAfter)
	offline := OfflineState
	marked := 0

	for page := 1; ; page++ {
		result, err := w.devices.Query(ctx, devices.Filter{}, database.QueryOptions{PageSize: pageSize, PageNum: page})
		if err != nil {
			return marked, err
		}

		for _, d := range result.Content {
			if d.State == OfflineState {
				continue
			}

			stale, err := w.isStale(ctx, d, threshold)
			if err != nil {
				return marked, err
			}
			if !stale {
				continue
			}

			if _, err := w.devices.Update(ctx, d.ID, types.UpdateDevice{State: &offline}); err != nil {
				return marked, err
			}
			marked++
		}

		if page >= result.TotalPage {
			return marked, nil
		}
	}
}

func (w *watchdog) isStale(ctx context.Context, d types.Device, threshold time.Time) (bool, error) {
	latest, err := w.logs.Latest(ctx, d.ID)
	if errors.Is(err, devicelogs.ErrDeviceLogNotFound) {
		return d.CreatedAt.Before(threshold), nil
	}
	if err != nil {
		return false, err
	}

	return latest.CreatedAt.Before(threshold), nil
}
