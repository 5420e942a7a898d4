package projects

import (
	"context"
	"errors"
	"testing"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestCreateProject(t *testing.T) {
	is, ctx, svc, activity := testSetup(t)

	p, err := svc.Create(activitylogs.WithActor(ctx, "admin"), types.CreateProject{Name: "alpha", Description: "first"})
	is.NoErr(err)
	is.True(p.ID != "")
	is.Equal(p.Name, "alpha")

	logs, err := activity.Query(ctx, activitylogs.Filter{}, database.QueryOptions{})
	is.NoErr(err)
	is.Equal(len(logs.Content), 1)
	is.Equal(logs.Content[0].Actor, "admin")
	is.Equal(logs.Content[0].TargetID, p.ID)
}

func TestCreateProjectWithDuplicateNameFails(t *testing.T) {
	is, ctx, svc, _ := testSetup(t)

	_, err := svc.Create(ctx, types.CreateProject{Name: "alpha"})
	is.NoErr(err)

	_, err = svc.Create(ctx, types.CreateProject{Name: "alpha"})
	is.True(errors.Is(err, ErrProjectAlreadyExists))
	is.True(errors.Is(err, database.ErrAlreadyExists))
}

func TestUpdateProjectIsPatch(t *testing.T) {
	is, ctx, svc, _ := testSetup(t)

	p, err := svc.Create(ctx, types.CreateProject{Name: "alpha", Description: "first"})
	is.NoErr(err)
	_, err = svc.Create(ctx, types.CreateProject{Name: "beta"})
	is.NoErr(err)

	description := "second"
	updated, err := svc.Update(ctx, p.ID, types.UpdateProject{Description: &description})
	is.NoErr(err)
	is.Equal(updated.Name, "alpha")
	is.Equal(updated.Description, "second")

	name := "beta"
	_, err = svc.Update(ctx, p.ID, types.UpdateProject{Name: &name})
	is.True(errors.Is(err, ErrProjectAlreadyExists))

	// renaming to its own name is not a conflict
	name = "alpha"
	_, err = svc.Update(ctx, p.ID, types.UpdateProject{Name: &name})
	is.NoErr(err)
}

func TestUpdateUnknownProjectIsNotFoundEvenWhenNameIsTaken(t *testing.T) {
	is, ctx, svc, _ := testSetup(t)

	_, err := svc.Create(ctx, types.CreateProject{Name: "alpha"})
	is.NoErr(err)

	name := "alpha"
	_, err = svc.Update(ctx, "missing", types.UpdateProject{Name: &name})
	is.True(errors.Is(err, ErrProjectNotFound))
}

func TestQueryProjectsWithKeyword(t *testing.T) {
	is, ctx, svc, _ := testSetup(t)

	for _, name := range []string{"Lighthouse", "Harbour", "Lightrail"} {
		_, err := svc.Create(ctx, types.CreateProject{Name: name})
		is.NoErr(err)
	}

	result, err := svc.Query(ctx, Filter{Keyword: "light"}, database.QueryOptions{SortBy: database.ParseSortBy("name:desc")})
	is.NoErr(err)
	is.Equal(result.TotalElement, int64(2))
	is.Equal(result.Content[0].Name, "Lightrail")
}

func TestDeleteUnknownProjectIsNotFound(t *testing.T) {
	is, ctx, svc, _ := testSetup(t)

	err := svc.Delete(ctx, "missing")
	is.True(errors.Is(err, ErrProjectNotFound))

	_, err = svc.GetByID(ctx, "missing")
	is.True(errors.Is(err, ErrProjectNotFound))
}

func testSetup(t *testing.T) (*is.I, context.Context, Projects, activitylogs.ActivityLogs) {
	is := is.New(t)
	ctx := context.Background()

	db, err := database.Connect(database.NewSQLiteConnector(zerolog.Nop()))
	is.NoErr(err)

	activity := activitylogs.New(database.NewStore[database.ActivityLog](db, database.ActivityLogSchema))
	svc := New(database.NewStore[database.Project](db, database.ProjectSchema), activity)

	return is, ctx, svc, activity
}
