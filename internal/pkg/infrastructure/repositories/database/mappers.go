package database

import (
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/goccy/go-json"
	"gorm.io/datatypes"
)

func MapProject(p Project) types.Project {
	return types.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func MapGateway(g Gateway) types.Gateway {
	gw := types.Gateway{
		ID:          g.ID,
		GatewayID:   g.ExternalID,
		Name:        g.Name,
		Description: g.Description,
		ProjectID:   g.ProjectID,
		Settings: types.GatewaySettings{
			RefreshDataAfterTime: g.Settings.RefreshDataAfterTime,
		},
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}

	if g.Project != nil {
		p := MapProject(*g.Project)
		gw.Project = &p
	}

	return gw
}

func MapDevice(d Device) types.Device {
	dev := types.Device{
		ID:               d.ID,
		GatewayID:        d.GatewayID,
		DeviceID:         d.UnitID,
		Type:             d.Type,
		Name:             d.Name,
		IPAddress:        d.IPAddress,
		Port:             d.Port,
		StartDataAddress: d.StartDataAddress,
		EndDataAddress:   d.EndDataAddress,
		State:            d.State,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}

	if d.Gateway != nil {
		gw := MapGateway(*d.Gateway)
		dev.Gateway = &gw
	}

	return dev
}

func MapDeviceLog(l DeviceLog) types.DeviceLog {
	dl := types.DeviceLog{
		ID:        l.ID,
		DeviceID:  l.DeviceID,
		GatewayID: l.GatewayID,
		Timestamp: l.Timestamp,
		List:      ReadingsFromJSON(l.List),
		CreatedAt: l.CreatedAt,
	}

	if l.Device != nil {
		d := MapDevice(*l.Device)
		dl.Device = &d
	}

	if l.Gateway != nil {
		gw := MapGateway(*l.Gateway)
		dl.Gateway = &gw
	}

	return dl
}

func MapFault(f Fault) types.Fault {
	fault := types.Fault{
		ID:          f.ID,
		GatewayID:   f.GatewayID,
		Timestamp:   f.Timestamp,
		Code:        f.Code,
		Description: f.Description,
		CreatedAt:   f.CreatedAt,
	}

	if f.DeviceID != nil {
		fault.DeviceID = *f.DeviceID
	}

	if f.Gateway != nil {
		gw := MapGateway(*f.Gateway)
		fault.Gateway = &gw
	}

	if f.Device != nil {
		d := MapDevice(*f.Device)
		fault.Device = &d
	}

	return fault
}

func MapActivityLog(a ActivityLog) types.ActivityLog {
	al := types.ActivityLog{
		ID:          a.ID,
		Actor:       a.Actor,
		Action:      a.Action,
		TargetType:  a.TargetType,
		TargetID:    a.TargetID,
		Description: a.Description,
		Timestamp:   a.Timestamp,
		CreatedAt:   a.CreatedAt,
	}

	if a.GatewayID != nil {
		al.GatewayID = *a.GatewayID
	}

	if a.Gateway != nil {
		gw := MapGateway(*a.Gateway)
		al.Gateway = &gw
	}

	return al
}

// ReadingsFromJSON never returns nil so that an empty list is encoded as [].
func ReadingsFromJSON(data datatypes.JSON) []types.Reading {
	readings := []types.Reading{}
	if len(data) == 0 {
		return readings
	}

	if err := json.Unmarshal(data, &readings); err != nil || readings == nil {
		return []types.Reading{}
	}

	return readings
}

func ReadingsToJSON(readings []types.Reading) (datatypes.JSON, error) {
	if readings == nil {
		readings = []types.Reading{}
	}

	b, err := json.Marshal(readings)
	if err != nil {
		return nil, err
	}

	return datatypes.JSON(b), nil
}

// OptionalID maps an empty reference to a NULL column.
func OptionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
