package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
)

var ErrProjectNotFound = fmt.Errorf("project not found: %w", database.ErrNotFound)
var ErrProjectAlreadyExists = fmt.Errorf("project already exists: %w", database.ErrAlreadyExists)

const targetType string = "project"

type Filter struct {
	Keyword string
}

type Projects interface {
	Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Project], error)
	GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Project, error)
	Create(ctx context.Context, req types.CreateProject) (types.Project, error)
	Update(ctx context.Context, id string, req types.UpdateProject) (types.Project, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	store    database.Store[database.Project]
	activity activitylogs.Recorder
}

func New(store database.Store[database.Project], activity activitylogs.Recorder) Projects {
	return &service{
		store:    store,
		activity: activity,
	}
}

func (s *service) Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Project], error) {
	result, err := s.store.Query(ctx, opts, database.WithKeyword(filter.Keyword))
	if err != nil {
		return types.Collection[types.Project]{}, err
	}

	return database.MapCollection(result, database.MapProject), nil
}

func (s *service) GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Project, error) {
	p, err := s.store.Get(ctx, id, populate...)
	if err != nil {
		return types.Project{}, notFound(err)
	}

	return database.MapProject(p), nil
}

func (s *service) Create(ctx context.Context, req types.CreateProject) (types.Project, error) {
	if err := s.ensureUniqueName(ctx, req.Name, ""); err != nil {
		return types.Project{}, err
	}

	p := database.Project{
		Name:        req.Name,
		Description: req.Description,
	}

	err := s.store.Create(ctx, &p)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return types.Project{}, ErrProjectAlreadyExists
		}
		return types.Project{}, err
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:      "create",
		TargetType:  targetType,
		TargetID:    p.ID,
		Description: fmt.Sprintf("created project %s", p.Name),
	})

	return database.MapProject(p), nil
}

func (s *service) Update(ctx context.Context, id string, req types.UpdateProject) (types.Project, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return types.Project{}, notFound(err)
	}

	fields := map[string]any{}

	if req.Name != nil {
		if err := s.ensureUniqueName(ctx, *req.Name, id); err != nil {
			return types.Project{}, err
		}
		fields["name"] = *req.Name
	}

	if req.Description != nil {
		fields["description"] = *req.Description
	}

	p, err := s.store.Update(ctx, id, fields)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return types.Project{}, ErrProjectAlreadyExists
		}
		return types.Project{}, notFound(err)
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:      "update",
		TargetType:  targetType,
		TargetID:    p.ID,
		Description: fmt.Sprintf("updated project %s", p.Name),
	})

	return database.MapProject(p), nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	if err != nil {
		return notFound(err)
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:     "delete",
		TargetType: targetType,
		TargetID:   id,
	})

	return nil
}

func (s *service) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.store.Exists(ctx, map[string]any{"name": name}, excludeID)
	if err != nil {
		return err
	}

	if exists {
		return ErrProjectAlreadyExists
	}

	return nil
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrProjectNotFound
	}
	return err
}
