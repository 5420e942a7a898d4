package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
)

func queryOptions(r *http.Request, schemas ...database.Schema) (database.QueryOptions, error) {
	q := r.URL.Query()

	pageSize, err := database.ParsePage(q.Get("pageSize"))
	if err != nil {
		return database.QueryOptions{}, err
	}

	if pageSize > database.MaxPageSize {
		return database.QueryOptions{}, fmt.Errorf("%w: pageSize must not exceed %d", database.ErrInvalidOptions, database.MaxPageSize)
	}

	pageNum, err := database.ParsePage(q.Get("pageNum"))
	if err != nil {
		return database.QueryOptions{}, err
	}

	opts := database.QueryOptions{
		SortBy:   database.ParseSortBy(q.Get("sortBy")),
		Populate: database.ParsePopulate(q.Get("populate")),
		PageSize: pageSize,
		PageNum:  pageNum,
	}

	if len(schemas) == 1 {
		return opts, schemas[0].Validate(opts)
	}

	// options shared by several entities only need to make sense to one of them
	for _, f := range opts.SortBy {
		if !acceptedByAny(database.QueryOptions{SortBy: []database.SortField{f}}, schemas) {
			return opts, fmt.Errorf("%w: cannot sort by %q", database.ErrInvalidOptions, f.Field)
		}
	}

	for _, p := range opts.Populate {
		if !acceptedByAny(database.QueryOptions{Populate: []database.Relation{p}}, schemas) {
			return opts, fmt.Errorf("%w: cannot populate %q", database.ErrInvalidOptions, p)
		}
	}

	return opts, nil
}

func acceptedByAny(opts database.QueryOptions, schemas []database.Schema) bool {
	for _, s := range schemas {
		if s.Validate(opts) == nil {
			return true
		}
	}
	return false
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be an RFC3339 timestamp", database.ErrInvalidInput, name)
	}

	return t, nil
}
