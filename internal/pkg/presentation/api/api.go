package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/dashboard"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devicelogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/faults"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/projects"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/presentation/api/auth"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-gateway-monitor/api")

var errGatewayRequired = fmt.Errorf("%w: gatewayId is required", database.ErrInvalidInput)

func RegisterHandlers(ctx context.Context, router *chi.Mux, authenticator auth.Authenticator, app *application.App) *chi.Mux {
	log := logging.GetFromContext(ctx)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Route("/api/v0", func(r chi.Router) {
		r.Use(authenticator.Authenticate)

		r.Get("/dashboard", dashboardHandler(log, app.Dashboard, true))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", queryHandler(log, "projects", database.ProjectSchema, queryProjects(app.Projects)))
			r.Post("/", createHandler(log, "project", app.Projects.Create))
			r.Get("/{id}", getHandler(log, "project", database.ProjectSchema, app.Projects.GetByID))
			r.Patch("/{id}", updateHandler(log, "project", app.Projects.Update))
			r.Delete("/{id}", deleteHandler(log, "project", app.Projects.Delete))
		})

		r.Route("/gateways", func(r chi.Router) {
			r.Get("/", queryHandler(log, "gateways", database.GatewaySchema, queryGateways(app.Gateways)))
			r.Post("/", createHandler(log, "gateway", app.Gateways.Create))
			r.Get("/{id}", getHandler(log, "gateway", database.GatewaySchema, app.Gateways.GetByID))
			r.Patch("/{id}", updateHandler(log, "gateway", app.Gateways.Update))
			r.Delete("/{id}", deleteHandler(log, "gateway", app.Gateways.Delete))
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", queryHandler(log, "devices", database.DeviceSchema, queryDevices(app.Devices)))
			r.Post("/", createHandler(log, "device", app.Devices.Create))
			r.Get("/{id}", getHandler(log, "device", database.DeviceSchema, app.Devices.GetByID))
			r.Patch("/{id}", updateHandler(log, "device", app.Devices.Update))
			r.Delete("/{id}", deleteHandler(log, "device", app.Devices.Delete))
		})

		r.Route("/deviceLogs", func(r chi.Router) {
			r.Get("/", queryHandler(log, "device-logs", database.DeviceLogSchema, queryDeviceLogs(app.DeviceLogs)))
			r.Post("/", createHandler(log, "device-log", app.DeviceLogs.Create))
			r.Get("/{id}", getHandler(log, "device-log", database.DeviceLogSchema, app.DeviceLogs.GetByID))
		})

		r.Route("/faults", func(r chi.Router) {
			r.Get("/", queryHandler(log, "faults", database.FaultSchema, queryFaults(app.Faults)))
			r.Post("/", createHandler(log, "fault", app.Faults.Create))
			r.Get("/{id}", getHandler(log, "fault", database.FaultSchema, app.Faults.GetByID))
		})

		r.Route("/activityLogs", func(r chi.Router) {
			r.Get("/", queryHandler(log, "activity-logs", database.ActivityLogSchema, queryActivityLogs(app.ActivityLogs)))
			r.Get("/{id}", getHandler(log, "activity-log", database.ActivityLogSchema, app.ActivityLogs.GetByID))
		})
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticator.Authenticate)
		r.Use(authenticator.RequirePermissions(types.PermissionManageUsers))

		r.Get("/dashboard", dashboardHandler(log, app.Dashboard, false))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", queryHandler(log, "projects", database.ProjectSchema, queryProjects(app.Projects)))
			r.Post("/", createHandler(log, "project", app.Projects.Create))
			r.Get("/{id}", getHandler(log, "project", database.ProjectSchema, app.Projects.GetByID))
			r.Patch("/{id}", updateHandler(log, "project", app.Projects.Update))
			r.Delete("/{id}", deleteHandler(log, "project", app.Projects.Delete))
		})

		r.Route("/gateways", func(r chi.Router) {
			r.Get("/", queryHandler(log, "gateways", database.GatewaySchema, queryGateways(app.Gateways)))
			r.Post("/", createHandler(log, "gateway", app.Gateways.Create))
			r.Get("/{id}", getHandler(log, "gateway", database.GatewaySchema, app.Gateways.GetByID))
			r.Patch("/{id}", updateHandler(log, "gateway", app.Gateways.Update))
			r.Patch("/{id}/settings", updateHandler(log, "gateway-settings", app.Gateways.UpdateSettings))
			r.Delete("/{id}", deleteHandler(log, "gateway", app.Gateways.Delete))
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", queryHandler(log, "devices", database.DeviceSchema, queryDevices(app.Devices)))
			r.Post("/", createHandler(log, "device", app.Devices.Create))
			r.Get("/{id}", getHandler(log, "device", database.DeviceSchema, app.Devices.GetByID))
			r.Patch("/{id}", updateHandler(log, "device", app.Devices.Update))
			r.Delete("/{id}", deleteHandler(log, "device", app.Devices.Delete))
		})

		r.Route("/deviceLogs", func(r chi.Router) {
			r.Get("/", queryHandler(log, "device-logs", database.DeviceLogSchema, queryDeviceLogs(app.DeviceLogs)))
			r.Post("/", createHandler(log, "device-log", app.DeviceLogs.Create))
			r.Get("/{id}", getHandler(log, "device-log", database.DeviceLogSchema, app.DeviceLogs.GetByID))
			r.Patch("/{id}", updateHandler(log, "device-log", app.DeviceLogs.Update))
			r.Delete("/{id}", deleteHandler(log, "device-log", app.DeviceLogs.Delete))
		})

		r.Route("/faults", func(r chi.Router) {
			r.Get("/", queryHandler(log, "faults", database.FaultSchema, queryFaults(app.Faults)))
			r.Post("/", createHandler(log, "fault", app.Faults.Create))
			r.Get("/{id}", getHandler(log, "fault", database.FaultSchema, app.Faults.GetByID))
			r.Patch("/{id}", updateHandler(log, "fault", app.Faults.Update))
			r.Delete("/{id}", deleteHandler(log, "fault", app.Faults.Delete))
		})

		r.Route("/activityLogs", func(r chi.Router) {
			r.Get("/", queryHandler(log, "activity-logs", database.ActivityLogSchema, queryActivityLogs(app.ActivityLogs)))
			r.Get("/{id}", getHandler(log, "activity-log", database.ActivityLogSchema, app.ActivityLogs.GetByID))
			r.Delete("/{id}", deleteHandler(log, "activity-log", app.ActivityLogs.Delete))
		})
	})

	return router
}

// dashboardHandler responds with the bare list of gateways and moves the page metadata to headers.
func dashboardHandler(log zerolog.Logger, svc dashboard.Dashboard, gatewayRequired bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-dashboard")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		gatewayID := r.URL.Query().Get("gatewayId")
		if gatewayID == "" && gatewayRequired {
			err = errGatewayRequired
			writeError(w, err)
			return
		}

		opts, err := queryOptions(r, database.GatewaySchema, database.DeviceSchema, database.FaultSchema)
		if err != nil {
			requestLogger.Info().Err(err).Msg("bad dashboard options")
			writeError(w, err)
			return
		}

		result, err := svc.Overview(ctx, dashboard.Filter{GatewayID: gatewayID}, opts)
		if err != nil {
			requestLogger.Error().Err(err).Str("gateway_id", gatewayID).Msg("unable to build dashboard")
			writeError(w, err)
			return
		}

		writePageHeaders(w, result)
		writeJSON(w, http.StatusOK, result.Content)
	}
}

func queryProjects(svc projects.Projects) queryFunc[types.Project] {
	return func(ctx context.Context, r *http.Request, opts database.QueryOptions) (types.Collection[types.Project], error) {
		return svc.Query(ctx, projects.Filter{Keyword: r.URL.Query().Get("keyword")}, opts)
	}
}

func queryGateways(svc gateways.Gateways) queryFunc[types.Gateway] {
	return func(ctx context.Context, r *http.Request, opts database.QueryOptions) (types.Collection[types.Gateway], error) {
		q := r.URL.Query()
		return svc.Query(ctx, gateways.Filter{
			ProjectID:  q.Get("projectId"),
			Identifier: q.Get("gatewayId"),
			Keyword:    q.Get("keyword"),
		}, opts)
	}
}

func queryDevices(svc devices.Devices) queryFunc[types.Device] {
	return func(ctx context.Context, r *http.Request, opts database.QueryOptions) (types.Collection[types.Device], error) {
		q := r.URL.Query()
		return svc.Query(ctx, devices.Filter{
			GatewayID: q.Get("gatewayId"),
			Keyword:   q.Get("keyword"),
		}, opts)
	}
}

func queryDeviceLogs(svc devicelogs.DeviceLogs) queryFunc[types.DeviceLog] {
	return func(ctx context.Context, r *http.Request, opts database.QueryOptions) (types.Collection[types.DeviceLog], error) {
		from, fromErr := timeParam(r, "from")
		to, toErr := timeParam(r, "to")
		if err := errors.Join(fromErr, toErr); err != nil {
			return types.Collection[types.DeviceLog]{}, err
		}

		q := r.URL.Query()
		return svc.Query(ctx, devicelogs.Filter{
			DeviceID:  q.Get("deviceId"),
			GatewayID: q.Get("gatewayId"),
			From:      from,
			To:        to,
		}, opts)
	}
}

func queryFaults(svc faults.Faults) queryFunc[types.Fault] {
	return func(ctx context.Context, r *http.Request, opts database.QueryOptions) (types.Collection[types.Fault], error) {
		q := r.URL.Query()
		return svc.Query(ctx, faults.Filter{
			GatewayID: q.Get("gatewayId"),
			DeviceID:  q.Get("deviceId"),
			Keyword:   q.Get("keyword"),
		}, opts)
	}
}

func queryActivityLogs(svc activitylogs.ActivityLogs) queryFunc[types.ActivityLog] {
	return func(ctx context.Context, r *http.Request, opts database.QueryOptions) (types.Collection[types.ActivityLog], error) {
		q := r.URL.Query()
		return svc.Query(ctx, activitylogs.Filter{
			GatewayID: q.Get("gatewayId"),
			Keyword:   q.Get("keyword"),
		}, opts)
	}
}
