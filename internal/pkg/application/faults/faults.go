package faults

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
)

var ErrFaultNotFound = fmt.Errorf("fault not found: %w", database.ErrNotFound)

type Filter struct {
	GatewayID string
	DeviceID  string
	Keyword   string
}

type Faults interface {
	Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Fault], error)
	GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Fault, error)
	Create(ctx context.Context, req types.CreateFault) (types.Fault, error)
	Update(ctx context.Context, id string, req types.UpdateFault) (types.Fault, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	store    database.Store[database.Fault]
	gateways gateways.Gateways
	devices  devices.Devices
}

func New(store database.Store[database.Fault], g gateways.Gateways, d devices.Devices) Faults {
	return &service{
		store:    store,
		gateways: g,
		devices:  d,
	}
}

func (s *service) Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Fault], error) {
	result, err := s.store.Query(ctx, opts,
		database.WithGatewayID(filter.GatewayID),
		database.WithDeviceID(filter.DeviceID),
		database.WithKeyword(filter.Keyword),
	)
	if err != nil {
		return types.Collection[types.Fault]{}, err
	}

	return database.MapCollection(result, database.MapFault), nil
}

func (s *service) GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Fault, error) {
	f, err := s.store.Get(ctx, id, populate...)
	if err != nil {
		return types.Fault{}, notFound(err)
	}

	return database.MapFault(f), nil
}

func (s *service) Create(ctx context.Context, req types.CreateFault) (types.Fault, error) {
	gw, err := s.gateways.GetByID(ctx, req.GatewayID)
	if err != nil {
		return types.Fault{}, err
	}

	if req.DeviceID != "" {
		device, err := s.devices.GetByID(ctx, req.DeviceID)
		if err != nil {
			return types.Fault{}, err
		}

		if device.GatewayID != gw.ID {
			return types.Fault{}, fmt.Errorf("%w: device %s is not attached to gateway %s", devices.ErrDeviceNotFound, device.ID, gw.ID)
		}
	}

	f := database.Fault{
		GatewayID:   gw.ID,
		DeviceID:    database.OptionalID(req.DeviceID),
		Timestamp:   timestampOrNow(req.Timestamp),
		Code:        req.Code,
		Description: req.Description,
	}

	err = s.store.Create(ctx, &f)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Fault{}, gateways.ErrGatewayNotFound
		}
		return types.Fault{}, err
	}

	return database.MapFault(f), nil
}

func (s *service) Update(ctx context.Context, id string, req types.UpdateFault) (types.Fault, error) {
	fields := map[string]any{}

	if req.Code != nil {
		fields["code"] = *req.Code
	}

	if req.Description != nil {
		fields["description"] = *req.Description
	}

	f, err := s.store.Update(ctx, id, fields)
	if err != nil {
		return types.Fault{}, notFound(err)
	}

	return database.MapFault(f), nil
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
		return ErrFaultNotFound
	}
	return err
}
