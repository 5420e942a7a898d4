package devicelogs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
)

var ErrDeviceLogNotFound = fmt.Errorf("device log not found: %w", database.ErrNotFound)

type Filter struct {
	DeviceID  string
	GatewayID string
	From      time.Time
	To        time.Time
}

type DeviceLogs interface {
	Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.DeviceLog], error)
	GetByID(ctx context.Context, id string, populate ...database.Relation) (types.DeviceLog, error)
	// Latest returns the most recently created log of a device.
	Latest(ctx context.Context, deviceID string) (types.DeviceLog, error)
	Create(ctx context.Context, req types.CreateDeviceLog) (types.DeviceLog, error)
	Update(ctx context.Context, id string, req types.UpdateDeviceLog) (types.DeviceLog, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	store   database.Store[database.DeviceLog]
	devices devices.Devices
}

func New(store database.Store[database.DeviceLog], d devices.Devices) DeviceLogs {
	return &service{
		store:   store,
		devices: d,
	}
}

func (s *service) Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.DeviceLog], error) {
	result, err := s.store.Query(ctx, opts,
		database.WithDeviceID(filter.DeviceID),
		database.WithGatewayID(filter.GatewayID),
		database.WithTimeRange(filter.From, filter.To),
	)
	if err != nil {
		return types.Collection[types.DeviceLog]{}, err
	}

	return database.MapCollection(result, database.MapDeviceLog), nil
}

func (s *service) GetByID(ctx context.Context, id string, populate ...database.Relation) (types.DeviceLog, error) {
	l, err := s.store.Get(ctx, id, populate...)
	if err != nil {
		return types.DeviceLog{}, notFound(err)
	}

	return database.MapDeviceLog(l), nil
}

func (s *service) Latest(ctx context.Context, deviceID string) (types.DeviceLog, error) {
	opts := database.QueryOptions{
		SortBy:   []database.SortField{{Field: "createdAt", Desc: true}},
		PageSize: 1,
	}

	result, err := s.Query(ctx, Filter{DeviceID: deviceID}, opts)
	if err != nil {
		return types.DeviceLog{}, err
	}

	if len(result.Content) == 0 {
		return types.DeviceLog{}, ErrDeviceLogNotFound
	}

	return result.Content[0], nil
}

func (s *service) Create(ctx context.Context, req types.CreateDeviceLog) (types.DeviceLog, error) {
	device, err := s.devices.GetByID(ctx, req.DeviceID)
	if err != nil {
		return types.DeviceLog{}, err
	}

	list, err := database.ReadingsToJSON(req.List)
	if err != nil {
		return types.DeviceLog{}, fmt.Errorf("%w: %s", database.ErrInvalidInput, err.Error())
	}

	l := database.DeviceLog{
		DeviceID:  device.ID,
		GatewayID: device.GatewayID,
		Timestamp: timestampOrNow(req.Timestamp),
		List:      list,
	}

	err = s.store.Create(ctx, &l)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.DeviceLog{}, devices.ErrDeviceNotFound
		}
		return types.DeviceLog{}, err
	}

	return database.MapDeviceLog(l), nil
}

func (s *service) Update(ctx context.Context, id string, req types.UpdateDeviceLog) (types.DeviceLog, error) {
	fields := map[string]any{}

	if req.Timestamp != nil {
		fields["timestamp"] = req.Timestamp.UTC()
	}

	if req.List != nil {
		list, err := database.ReadingsToJSON(req.List)
		if err != nil {
			return types.DeviceLog{}, fmt.Errorf("%w: %s", database.ErrInvalidInput, err.Error())
		}
		fields["list"] = list
	}

	l, err := s.store.Update(ctx, id, fields)
	if err != nil {
		return types.DeviceLog{}, notFound(err)
	}

	return database.MapDeviceLog(l), nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	return notFound(s.store.Delete(ctx, id))
}

func timestampOrNow(ts *time.Time) time.Time {
	if ts == nil || ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrDeviceLogNotFound
	}
	return err
}
