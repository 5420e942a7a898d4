package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

var validate = validator.New()

type queryFunc[T any] func(ctx context.Context, r *http.Request, opts database.QueryOptions) (types.Collection[T], error)
type getFunc[T any] func(ctx context.Context, id string, populate ...database.Relation) (T, error)
type createFunc[R any, T any] func(ctx context.Context, req R) (T, error)
type updateFunc[R any, T any] func(ctx context.Context, id string, req R) (T, error)
type deleteFunc func(ctx context.Context, id string) error

func queryHandler[T any](log zerolog.Logger, name string, schema database.Schema, query queryFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "query-"+name)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		opts, err := queryOptions(r, schema)
		if err != nil {
			requestLogger.Info().Err(err).Msg("bad query options")
			writeError(w, err)
			return
		}

		result, err := query(ctx, r, opts)
		if err != nil {
			requestLogger.Error().Err(err).Msgf("unable to query %s", name)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func getHandler[T any](log zerolog.Logger, name string, schema database.Schema, get getFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-"+name)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "id")
		requestLogger = requestLogger.With().Str("id", id).Logger()

		populate := database.ParsePopulate(r.URL.Query().Get("populate"))
		err = schema.Validate(database.QueryOptions{Populate: populate})
		if err != nil {
			requestLogger.Info().Err(err).Msg("bad populate option")
			writeError(w, err)
			return
		}

		result, err := get(ctx, id, populate...)
		if err != nil {
			requestLogger.Debug().Err(err).Msgf("unable to get %s", name)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func createHandler[R any, T any](log zerolog.Logger, name string, create createFunc[R, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "create-"+name)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var req R
		err = decode(r, &req)
		if err != nil {
			requestLogger.Info().Err(err).Msgf("invalid %s request", name)
			writeError(w, err)
			return
		}

		result, err := create(ctx, req)
		if err != nil {
			requestLogger.Info().Err(err).Msgf("unable to create %s", name)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

func updateHandler[R any, T any](log zerolog.Logger, name string, update updateFunc[R, T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "patch-"+name)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "id")
		requestLogger = requestLogger.With().Str("id", id).Logger()

		var req R
		err = decode(r, &req)
		if err != nil {
			requestLogger.Info().Err(err).Msgf("invalid %s patch", name)
			writeError(w, err)
			return
		}

		result, err := update(ctx, id, req)
		if err != nil {
			requestLogger.Info().Err(err).Msgf("unable to update %s", name)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func deleteHandler(log zerolog.Logger, name string, del deleteFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "delete-"+name)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "id")

		err = del(ctx, id)
		if err != nil {
			requestLogger.Info().Err(err).Str("id", id).Msgf("unable to delete %s", name)
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: unable to read body", database.ErrInvalidInput)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s", database.ErrInvalidInput, err.Error())
	}

	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", database.ErrInvalidInput, err.Error())
	}

	return nil
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrAlreadyExists),
		errors.Is(err, database.ErrInvalidOptions),
		errors.Is(err, database.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}

	writeJSON(w, status, errorBody{Code: status, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writePageHeaders[T any](w http.ResponseWriter, c types.Collection[T]) {
	w.Header().Set("X-Current-Page", strconv.Itoa(c.CurrentPage))
	w.Header().Set("X-Page-Size", strconv.Itoa(c.PageSize))
	w.Header().Set("X-Total-Page", strconv.Itoa(c.TotalPage))
	w.Header().Set("X-Total-Element", strconv.FormatInt(c.TotalElement, 10))
}
