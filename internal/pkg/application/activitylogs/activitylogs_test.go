package activitylogs

import (
	"context"
	"errors"
	"testing"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestRecordUsesActorFromContext(t *testing.T) {
	is, ctx, svc, published := testSetup(t)

	svc.Record(WithActor(ctx, "alice"), Activity{Action: "create", TargetType: "project", TargetID: "p1"})
	svc.Record(ctx, Activity{Action: "delete", TargetType: "project", TargetID: "p1"})

	result, err := svc.Query(ctx, Filter{}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(len(result.Content), 2)
	is.Equal(result.Content[0].Actor, "alice")
	is.Equal(result.Content[1].Actor, SystemActor)

	is.Equal(len(*published), 2)
	is.Equal((*published)[0].Action, "create")
}

func TestRecordWithUnknownGatewayIsNotStored(t *testing.T) {
	is, ctx, svc, published := testSetup(t)

	svc.Record(ctx, Activity{Action: "update", GatewayID: "missing"})

	result, err := svc.Query(ctx, Filter{}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(len(result.Content), 0)
	is.Equal(len(*published), 0)
}

func TestCreateAndGet(t *testing.T) {
	is, ctx, svc, _ := testSetup(t)

	a, err := svc.Create(ctx, types.CreateActivityLog{Actor: "bob", Action: "login"})
	is.NoErr(err)
	is.True(!a.Timestamp.IsZero())

	b, err := svc.GetByID(ctx, a.ID)
	is.NoErr(err)
	is.Equal(b.Actor, "bob")

	description := "signed in"
	c, err := svc.Update(ctx, a.ID, types.UpdateActivityLog{Description: &description})
	is.NoErr(err)
	is.Equal(c.Description, description)

	is.NoErr(svc.Delete(ctx, a.ID))

	_, err = svc.GetByID(ctx, a.ID)
	is.True(errors.Is(err, ErrActivityLogNotFound))
	is.True(errors.Is(err, database.ErrNotFound))
}

type publisherFunc func(ctx context.Context, a types.ActivityLog) error

func (f publisherFunc) Publish(ctx context.Context, a types.ActivityLog) error {
	return f(ctx, a)
}

func testSetup(t *testing.T) (*is.I, context.Context, ActivityLogs, *[]types.ActivityLog) {
	is := is.New(t)
	ctx := context.Background()

	db, err := database.Connect(database.NewSQLiteConnector(zerolog.Nop()))
	is.NoErr(err)

	published := &[]types.ActivityLog{}
	p := publisherFunc(func(ctx context.Context, a types.ActivityLog) error {
		*published = append(*published, a)
		return nil
	})

	svc := New(database.NewStore[database.ActivityLog](db, database.ActivityLogSchema), p)

	return is, ctx, svc, published
}
