package database

import (
	"context"

	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Paginate counts and fetches one page of T matching the conditions. The count and the
// fetch are independent queries and run concurrently.
func Paginate[T any](ctx context.Context, db *gorm.DB, schema Schema, opts QueryOptions, conditions ...ConditionFunc) (types.Collection[T], error) {
	opts = opts.WithDefaults()
	where := NewCondition(conditions...).scope(schema)

	var totalElement int64
	content := []T{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return db.WithContext(gctx).Model(new(T)).Scopes(where).Count(&totalElement).Error
	})

	if offset, ok := opts.offset(); ok {
		g.Go(func() error {
			return db.WithContext(gctx).
				Scopes(where, schema.order(opts.SortBy), schema.preload(opts.Populate)).
				Offset(offset).
				Limit(opts.PageSize).
				Find(&content).Error
		})
	}

	if err := g.Wait(); err != nil {
		return types.Collection[T]{}, translate(err)
	}

	return types.Collection[T]{
		Content:      content,
		CurrentPage:  opts.PageNum,
		PageSize:     opts.PageSize,
		TotalPage:    totalPages(totalElement, opts.PageSize),
		TotalElement: totalElement,
	}, nil
}

func totalPages(totalElement int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	pages := totalElement / size
	if totalElement%size != 0 {
		pages++
	}
	return int(pages)
}

// MapCollection converts the content of a collection while keeping the paging information.
func MapCollection[T any, U any](c types.Collection[T], f func(T) U) types.Collection[U] {
	content := make([]U, 0, len(c.Content))
	for _, item := range c.Content {
		content = append(content, f(item))
	}

	return types.Collection[U]{
		Content:      content,
		CurrentPage:  c.CurrentPage,
		PageSize:     c.PageSize,
		TotalPage:    c.TotalPage,
		TotalElement: c.TotalElement,
	}
}
