package gateways

import (
	"context"
	"errors"
	"fmt"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/projects"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
)

var ErrGatewayNotFound = fmt.Errorf("gateway not found: %w", database.ErrNotFound)
var ErrGatewayAlreadyExists = fmt.Errorf("gateway already exists: %w", database.ErrAlreadyExists)

const targetType string = "gateway"

// Filter narrows a gateway query. Identifier matches either the internal id or the
// gateway supplied gatewayId.
type Filter struct {
	ProjectID  string
	Identifier string
	Keyword    string
}

type Gateways interface {
	Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Gateway], error)
	GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Gateway, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (types.Gateway, error)
	Create(ctx context.Context, req types.CreateGateway) (types.Gateway, error)
	Update(ctx context.Context, id string, req types.UpdateGateway) (types.Gateway, error)
	UpdateSettings(ctx context.Context, id string, req types.UpdateGatewaySettings) (types.Gateway, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	store    database.Store[database.Gateway]
	projects projects.Projects
	activity activitylogs.Recorder
}

func New(store database.Store[database.Gateway], p projects.Projects, activity activitylogs.Recorder) Gateways {
	return &service{
		store:    store,
		projects: p,
		activity: activity,
	}
}

func (s *service) Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.Gateway], error) {
	result, err := s.store.Query(ctx, opts,
		database.WithProjectID(filter.ProjectID),
		database.WithIdentifier(filter.Identifier),
		database.WithKeyword(filter.Keyword),
	)
	if err != nil {
		return types.Collection[types.Gateway]{}, err
	}

	return database.MapCollection(result, database.MapGateway), nil
}

func (s *service) GetByID(ctx context.Context, id string, populate ...database.Relation) (types.Gateway, error) {
	g, err := s.store.Get(ctx, id, populate...)
	if err != nil {
		return types.Gateway{}, notFound(err)
	}

	return database.MapGateway(g), nil
}

func (s *service) GetByGatewayID(ctx context.Context, gatewayID string) (types.Gateway, error) {
	result, err := s.store.Query(ctx, database.QueryOptions{PageSize: 1}, database.WithColumn("external_id", gatewayID))
	if err != nil {
		return types.Gateway{}, err
	}

	if len(result.Content) == 0 {
		return types.Gateway{}, ErrGatewayNotFound
	}

	return database.MapGateway(result.Content[0]), nil
}

func (s *service) Create(ctx context.Context, req types.CreateGateway) (types.Gateway, error) {
	if _, err := s.projects.GetByID(ctx, req.ProjectID); err != nil {
		return types.Gateway{}, err
	}

	if err := s.ensureUnique(ctx, map[string]any{"external_id": req.GatewayID}, ""); err != nil {
		return types.Gateway{}, err
	}

	if err := s.ensureUnique(ctx, map[string]any{"name": req.Name}, ""); err != nil {
		return types.Gateway{}, err
	}

	g := database.Gateway{
		ExternalID:  req.GatewayID,
		Name:        req.Name,
		Description: req.Description,
		ProjectID:   req.ProjectID,
	}

	err := s.store.Create(ctx, &g)
	if err != nil {
		return types.Gateway{}, s.storeError(err, req.ProjectID)
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:      "create",
		TargetType:  targetType,
		TargetID:    g.ID,
		GatewayID:   g.ID,
		Description: fmt.Sprintf("created gateway %s (%s)", g.Name, g.ExternalID),
	})

	return database.MapGateway(g), nil
}

func (s *service) Update(ctx context.Context, id string, req types.UpdateGateway) (types.Gateway, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return types.Gateway{}, notFound(err)
	}

	fields := map[string]any{}

	if req.ProjectID != nil {
		if _, err := s.projects.GetByID(ctx, *req.ProjectID); err != nil {
			return types.Gateway{}, err
		}
		fields["project_id"] = *req.ProjectID
	}

	if req.GatewayID != nil {
		if err := s.ensureUnique(ctx, map[string]any{"external_id": *req.GatewayID}, id); err != nil {
			return types.Gateway{}, err
		}
		fields["external_id"] = *req.GatewayID
	}

	if req.Name != nil {
		if err := s.ensureUnique(ctx, map[string]any{"name": *req.Name}, id); err != nil {
			return types.Gateway{}, err
		}
		fields["name"] = *req.Name
	}

	if req.Description != nil {
		fields["description"] = *req.Description
	}

	return s.update(ctx, id, fields, "updated gateway")
}

func (s *service) UpdateSettings(ctx context.Context, id string, req types.UpdateGatewaySettings) (types.Gateway, error) {
	fields := map[string]any{}

	if req.RefreshDataAfterTime != nil {
		fields["settings_refresh_data_after_time"] = *req.RefreshDataAfterTime
	}

	return s.update(ctx, id, fields, "updated gateway settings")
}

func (s *service) update(ctx context.Context, id string, fields map[string]any, description string) (types.Gateway, error) {
	g, err := s.store.Update(ctx, id, fields)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return types.Gateway{}, ErrGatewayAlreadyExists
		}
		return types.Gateway{}, notFound(err)
	}

	s.activity.Record(ctx, activitylogs.Activity{
		Action:      "update",
		TargetType:  targetType,
		TargetID:    g.ID,
		GatewayID:   g.ID,
		Description: fmt.Sprintf("%s %s", description, g.Name),
	})

	return database.MapGateway(g), nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	if err != nil {
		return notFound(err)
	}

	// the gateway reference would dangle, the target id keeps the trail
	s.activity.Record(ctx, activitylogs.Activity{
		Action:     "delete",
		TargetType: targetType,
		TargetID:   id,
	})

	return nil
}

func (s *service) ensureUnique(ctx context.Context, fields map[string]any, excludeID string) error {
	exists, err := s.store.Exists(ctx, fields, excludeID)
	if err != nil {
		return err
	}

	if exists {
		return ErrGatewayAlreadyExists
	}

	return nil
}

func (s *service) storeError(err error, projectID string) error {
	switch {
	case errors.Is(err, database.ErrAlreadyExists):
		return ErrGatewayAlreadyExists
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%w (%s)", projects.ErrProjectNotFound, projectID)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrGatewayNotFound
	}
	return err
}
