package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
)

var ErrDeviceNotFound = fmt.Errorf("device not found: %w", database.ErrNotFound)
var ErrDeviceAlreadyExists = fmt.Errorf("device already exists: %w", database.ErrAlreadyExists)

const targetType string = "device"

type Filter struct {
	GatewayID string
	Keyword   string
}

type Devices interface {
	Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Device], error)
	GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Device, error)
	// GetByUnit finds a device by the gateway internal id and the gateway local device id.
	GetByUnit(ctx context.Context, gatewayID string, deviceID int) (types.Device, error)
	Create(ctx context.Context, req types.CreateDevice) (types.Device, error)
	Update(ctx context.Context, id string, req types.UpdateDevice) (types.Device, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	store    database.Store[database.Device]
	gateways gateways.Gateways
	activity activitylogs.Recorder
}

func New(store database.Store[database.Device], g gateways.Gateways, activity activitylogs.Recorder) Devices {
	return &service{
		store:    store,
		gateways: g,
		activity: activity,
	}
}

func (s *service) Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Device], error) {
	result, err := s.store.Query(ctx, opts, database.WithGatewayID(filter.GatewayID), database.WithKeyword(filter.Keyword))
	if err != nil {
		return types.Collection[types.Device]{}, err
	}

	return database.MapCollection(result, database.MapDevice), nil
}

func (s *service) GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Device, error) {
	d, err := s.store.Get(ctx, id, populate...)
	if err != nil {
		return types.Device{}, notFound(err)
	}

	return database.MapDevice(d), nil
}

func (s *service) GetByUnit(ctx context.Context, gatewayID string, deviceID int) (types.Device, error) {
	result, err := s.store.Query(ctx, database.QueryOptions{PageSize: 1}, database.WithGatewayID(gatewayID), withUnitID(deviceID))
	if err != nil {
		return types.Device{}, err
	}

	if len(result.Content) == 0 {
		return types.Device{}, ErrDeviceNotFound
	}

	return database.MapDevice(result.Content[0]), nil
}

func (s *service) Create(ctx context.Context, req types.CreateDevice) (types.Device, error) {
	if req.DeviceID == nil {
		return types.Device{}, fmt.Errorf("%w: deviceId is required", database.ErrInvalidInput)
	}

	gw, err := s.gateways.GetByID(ctx, req.GatewayID)
	if err != nil {
		return types.Device{}, err
	}

	if err := s.ensureUnique(ctx, gw.ID, *req.DeviceID, ""); err != nil {
		return types.Device{}, err
	}

	d := database.Device{
		GatewayID:        gw.ID,
		UnitID:           *req.DeviceID,
		Type:             req.Type,
		Name:             req.Name,
		IPAddress:        req.IPAddress,
		Port:             req.Port,
		StartDataAddress: req.StartDataAddress,
		EndDataAddress:   req.EndDataAddress,
		State:            req.State,
	}

	err = s.store.Create(ctx, &d)
	if err != nil {
		return types.Device{}, storeError(err)
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:      "create",
		TargetType:  targetType,
		TargetID:    d.ID,
		GatewayID:   d.GatewayID,
		Description: fmt.Sprintf("created device %d on gateway %s", d.UnitID, gw.Name),
	})

	return database.MapDevice(d), nil
}

func (s *service) Update(ctx context.Context, id string, req types.UpdateDevice) (types.Device, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return types.Device{}, notFound(err)
	}

	fields := map[string]any{}

	gatewayID, unitID := current.GatewayID, current.UnitID

	if req.GatewayID != nil && *req.GatewayID != current.GatewayID {
		if _, err := s.gateways.GetByID(ctx, *req.GatewayID); err != nil {
			return types.Device{}, err
		}
		gatewayID = *req.GatewayID
		fields["gateway_id"] = gatewayID
	}

	if req.DeviceID != nil {
		unitID = *req.DeviceID
		fields["unit_id"] = unitID
	}

	if gatewayID != current.GatewayID || unitID != current.UnitID {
		if err := s.ensureUnique(ctx, gatewayID, unitID, id); err != nil {
			return types.Device{}, err
		}
	}

	setIf(fields, "type", req.Type)
	setIf(fields, "name", req.Name)
	setIf(fields, "ip_address", req.IPAddress)
	setIf(fields, "port", req.Port)
	setIf(fields, "start_data_address", req.StartDataAddress)
	setIf(fields, "end_data_address", req.EndDataAddress)
	setIf(fields, "state", req.State)

	d, err := s.store.Update(ctx, id, fields)
	if err != nil {
		return types.Device{}, storeError(err)
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:      "update",
		TargetType:  targetType,
		TargetID:    d.ID,
		GatewayID:   d.GatewayID,
		Description: fmt.Sprintf("updated device %d", d.UnitID),
	})

	return database.MapDevice(d), nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return notFound(err)
	}

	err = s.store.Delete(ctx, id)
	if err != nil {
		return notFound(err)
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:      "delete",
		TargetType:  targetType,
		TargetID:    id,
		GatewayID:   current.GatewayID,
		Description: fmt.Sprintf("deleted device %d", current.UnitID),
	})

	return nil
}

func (s *service) ensureUnique(ctx context.Context, gatewayID string, unitID int, excludeID string) error {
	exists, err := s.store.Exists(ctx, map[string]any{"gateway_id": gatewayID, "unit_id": unitID}, excludeID)
	if err != nil {
		return err
	}

	if exists {
		return ErrDeviceAlreadyExists
	}

	return nil
}

func withUnitID(unitID int) database.ConditionFunc {
	return database.WithColumn("unit_id", unitID)
}

func setIf[T any](fields map[string]any, column string, value *T) {
	if value != nil {
		fields[column] = *value
	}
}

func storeError(err error) error {
	switch {
	case errors.Is(err, database.ErrAlreadyExists):
		return ErrDeviceAlreadyExists
	case errors.Is(err, database.ErrNotFound):
		return ErrDeviceNotFound
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrDeviceNotFound
	}
	return err
}
