package activitylogs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-gateway-monitor/activitylogs")

var ErrActivityLogNotFound = fmt.Errorf("activity log not found: %w", database.ErrNotFound)

const SystemActor string = "system"

type Filter struct {
	GatewayID string
	Keyword   string
}

// Activity is a mutation to be recorded. The actor is taken from the context.
type Activity struct {
	Action      string
	TargetType  string
	TargetID    string
	GatewayID   string
	Description string
}

type Publisher interface {
	Publish(ctx context.Context, activity types.ActivityLog) error
}

type Recorder interface {
	Record(ctx context.Context, activity Activity)
}

type ActivityLogs interface {
	Recorder

	Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.ActivityLog], error)
	GetByID(ctx context.Context, id string, populate ...database.Relation) (types.ActivityLog, error)
	Create(ctx context.Context, req types.CreateActivityLog) (types.ActivityLog, error)
	Update(ctx context.Context, id string, req types.UpdateActivityLog) (types.ActivityLog, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	store      database.Store[database.ActivityLog]
	publishers []Publisher
}

func New(store database.Store[database.ActivityLog], publishers ...Publisher) ActivityLogs {
	return &service{
		store:      store,
		publishers: publishers,
	}
}

func (s *service) Query(ctx context.Context, filter Filter, opts database.QueryOptions) (types.Collection[types.ActivityLog], error) {
	result, err := s.store.Query(ctx, opts, database.WithGatewayID(filter.GatewayID), database.WithKeyword(filter.Keyword))
	if err != nil {
		return types.Collection[types.ActivityLog]{}, err
	}

	return database.MapCollection(result, database.MapActivityLog), nil
}

func (s *service) GetByID(ctx context.Context, id string, populate ...database.Relation) (types.ActivityLog, error) {
	a, err := s.store.Get(ctx, id, populate...)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.ActivityLog{}, ErrActivityLogNotFound
		}
		return types.ActivityLog{}, err
	}

	return database.MapActivityLog(a), nil
}

func (s *service) Create(ctx context.Context, req types.CreateActivityLog) (types.ActivityLog, error) {
	a := database.ActivityLog{
		Actor:       req.Actor,
		Action:      req.Action,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		GatewayID:   database.OptionalID(req.GatewayID),
		Description: req.Description,
		Timestamp:   timestampOrNow(req.Timestamp),
	}

	err := s.store.Create(ctx, &a)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.ActivityLog{}, fmt.Errorf("gateway %s: %w", req.GatewayID, database.ErrNotFound)
		}
		return types.ActivityLog{}, err
	}

	return database.MapActivityLog(a), nil
}

func (s *service) Update(ctx context.Context, id string, req types.UpdateActivityLog) (types.ActivityLog, error) {
	fields := map[string]any{}
	if req.Description != nil {
		fields["description"] = *req.Description
	}

	a, err := s.store.Update(ctx, id, fields)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.ActivityLog{}, ErrActivityLogNotFound
		}
		return types.ActivityLog{}, err
	}

	return database.MapActivityLog(a), nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrActivityLogNotFound
	}
	return err
}

// Record stores the activity and hands it to the publishers. Failures are logged and never
// fail the mutation that caused the activity.
func (s *service) Record(ctx context.Context, activity Activity) {
	ctx, span := tracer.Start(ctx, "record-activity")
	defer span.End()

	log := logging.GetFromContext(ctx).With().
		Str("action", activity.Action).
		Str("target_type", activity.TargetType).
		Str("target_id", activity.TargetID).
		Logger()

	a, err := s.Create(ctx, types.CreateActivityLog{
		Actor:       ActorFromContext(ctx),
		Action:      activity.Action,
		TargetType:  activity.TargetType,
		TargetID:    activity.TargetID,
		GatewayID:   activity.GatewayID,
		Description: activity.Description,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to record activity")
		return
	}

	for _, p := range s.publishers {
		if err = p.Publish(ctx, a); err != nil {
			log.Error().Err(err).Msg("failed to publish activity")
		}
	}
}

func timestampOrNow(ts *time.Time) time.Time {
	if ts == nil || ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

type actorKey struct{}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated actor, or SystemActor for work that was not
// started by a request.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
