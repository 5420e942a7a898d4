package database

import (
	"context"

	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store[T any] interface {
	Query(ctx context.Context, opts QueryOptions, conditions ...ConditionFunc) (types.Collection[T], error)
	Get(ctx context.Context, id string, populate ...Relation) (T, error)
	Exists(ctx context.Context, fields map[string]any, excludeID string) (bool, error)
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, id string, fields map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
	Schema() Schema
}

type repository[T any] struct {
	db     *gorm.DB
	schema Schema
}

func NewStore[T any](db *gorm.DB, schema Schema) Store[T] {
	return &repository[T]{
		db:     db,
		schema: schema,
	}
}

func (r *repository[T]) Schema() Schema {
	return r.schema
}

func (r *repository[T]) Query(ctx context.Context, opts QueryOptions, conditions ...ConditionFunc) (types.Collection[T], error) {
	return Paginate[T](ctx, r.db, r.schema, opts, conditions...)
}

func (r *repository[T]) Get(ctx context.Context, id string, populate ...Relation) (T, error) {
	var entity T

	err := r.db.WithContext(ctx).
		Scopes(r.schema.preload(populate)).
		Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).
		First(&entity).Error

	return entity, translate(err)
}

// Exists reports if any row matches all of the fields, ignoring the row with id excludeID.
func (r *repository[T]) Exists(ctx context.Context, fields map[string]any, excludeID string) (bool, error) {
	var count int64

	query := r.db.WithContext(ctx).Model(new(T)).Where(fields)
	if excludeID != "" {
		query = query.Where(clause.Neq{Column: clause.Column{Name: "id"}, Value: excludeID})
	}

	err := query.Count(&count).Error
	if err != nil {
		return false, translate(err)
	}

	return count > 0, nil
}

func (r *repository[T]) Create(ctx context.Context, entity *T) error {
	return translate(r.db.WithContext(ctx).Create(entity).Error)
}

func (r *repository[T]) Update(ctx context.Context, id string, fields map[string]any) (T, error) {
	entity, err := r.Get(ctx, id)
	if err != nil {
		return entity, err
	}

	if len(fields) > 0 {
		err = r.db.WithContext(ctx).Model(&entity).Updates(fields).Error
		if err != nil {
			return entity, translate(err)
		}
	}

	return r.Get(ctx, id)
}

func (r *repository[T]) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).
		Delete(new(T))

	if result.Error != nil {
		return translate(result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
