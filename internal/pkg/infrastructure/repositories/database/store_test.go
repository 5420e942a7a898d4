package database

import (
	"errors"
	"testing"

	"github.com/diwise/iot-gateway-monitor/pkg/types"
)

func TestStoreGetUnknownIDIsNotFound(t *testing.T) {
	is, ctx, db := testSetup(t)
	store := NewStore[Project](db, ProjectSchema)

	_, err := store.Get(ctx, "does-not-exist")
	is.True(errors.Is(err, ErrNotFound))
}

func TestStoreCreateDuplicateIsAlreadyExists(t *testing.T) {
	is, ctx, db := testSetup(t)
	store := NewStore[Project](db, ProjectSchema)

	is.NoErr(store.Create(ctx, &Project{Name: "p1"}))

	err := store.Create(ctx, &Project{Name: "p1"})
	is.True(errors.Is(err, ErrAlreadyExists))
}

func TestStoreCreateWithMissingParentIsNotFound(t *testing.T) {
	is, ctx, db := testSetup(t)
	store := NewStore[Gateway](db, GatewaySchema)

	err := store.Create(ctx, &Gateway{ExternalID: "ext", Name: "gw", ProjectID: "missing"})
	is.True(errors.Is(err, ErrNotFound))
}

func TestStoreExists(t *testing.T) {
	is, ctx, db := testSetup(t)
	store := NewStore[Project](db, ProjectSchema)

	p := Project{Name: "p1"}
	is.NoErr(store.Create(ctx, &p))

	exists, err := store.Exists(ctx, map[string]any{"name": "p1"}, "")
	is.NoErr(err)
	is.True(exists)

	exists, err = store.Exists(ctx, map[string]any{"name": "p1"}, p.ID)
	is.NoErr(err)
	is.True(!exists) // the row itself is excluded
}

func TestStoreUpdateOnlyChangesProvidedFields(t *testing.T) {
	is, ctx, db := testSetup(t)
	store := NewStore[Project](db, ProjectSchema)

	p := Project{Name: "p1", Description: "first"}
	is.NoErr(store.Create(ctx, &p))

	updated, err := store.Update(ctx, p.ID, map[string]any{"description": "second"})
	is.NoErr(err)
	is.Equal(updated.Name, "p1")
	is.Equal(updated.Description, "second")

	_, err = store.Update(ctx, "missing", map[string]any{"description": "x"})
	is.True(errors.Is(err, ErrNotFound))
}

func TestStoreDeleteCascadesToChildren(t *testing.T) {
	is, ctx, db := testSetup(t)
	projects := NewStore[Project](db, ProjectSchema)
	devices := NewStore[Device](db, DeviceSchema)

	p := seedProject(ctx, is, db, "p1")
	gw := seedGateways(ctx, is, db, p.ID, 1)[0]

	d := Device{GatewayID: gw.ID, UnitID: 1, Type: "modbus"}
	is.NoErr(devices.Create(ctx, &d))

	list, err := ReadingsToJSON([]types.Reading{{Name: "temp", Value: 21.5}})
	is.NoErr(err)
	is.NoErr(db.Create(&DeviceLog{DeviceID: d.ID, GatewayID: gw.ID, List: list}).Error)

	is.NoErr(projects.Delete(ctx, p.ID))

	_, err = devices.Get(ctx, d.ID)
	is.True(errors.Is(err, ErrNotFound))

	var logs int64
	is.NoErr(db.Model(&DeviceLog{}).Count(&logs).Error)
	is.Equal(logs, int64(0))

	err = projects.Delete(ctx, p.ID)
	is.True(errors.Is(err, ErrNotFound))
}

func TestStoreDeleteDeviceNullsFaultReference(t *testing.T) {
	is, ctx, db := testSetup(t)
	devices := NewStore[Device](db, DeviceSchema)
	faults := NewStore[Fault](db, FaultSchema)

	p := seedProject(ctx, is, db, "p1")
	gw := seedGateways(ctx, is, db, p.ID, 1)[0]

	d := Device{GatewayID: gw.ID, UnitID: 7, Type: "modbus"}
	is.NoErr(devices.Create(ctx, &d))

	f := Fault{GatewayID: gw.ID, DeviceID: OptionalID(d.ID), Code: "E1"}
	is.NoErr(faults.Create(ctx, &f))

	is.NoErr(devices.Delete(ctx, d.ID))

	fault, err := faults.Get(ctx, f.ID)
	is.NoErr(err)
	is.True(fault.DeviceID == nil)
}

func TestReadingsRoundTripKeepsEmptyList(t *testing.T) {
	is, _, _ := testSetup(t)

	data, err := ReadingsToJSON(nil)
	is.NoErr(err)
	is.Equal(string(data), "[]")

	readings := ReadingsFromJSON(nil)
	is.True(readings != nil)
	is.Equal(len(readings), 0)
}
