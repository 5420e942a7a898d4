package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/events"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/messaging"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/metrics"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/mqtt"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/router"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/presentation/api"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/presentation/api/auth"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const serviceName string = "iot-gateway-monitor"

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort
	controlPort

	policiesFile
	configurationFile
	jwtSecret
	rateLimit

	rabbitMQURL
	mqttBrokerURL
)

func defaultFlags() flagMap {
	return flagMap{
		listenAddress: "0.0.0.0",
		servicePort:   "8080",
		controlPort:   "8000",

		policiesFile:      "",
		configurationFile: "/opt/diwise/config/config.yaml",
		jwtSecret:         "",
		rateLimit:         "0",

		rabbitMQURL:   "",
		mqttBrokerURL: "",
	}
}

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	flags := parseExternalConfig(logger, defaultFlags())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, flags)
	exitIf(err, logger, "service stopped with an error")

	logger.Info().Msg("shut down")
}

func run(ctx context.Context, flags flagMap) error {
	log := logging.GetFromContext(ctx)

	cfg, err := loadConfiguration(ctx, flags[configurationFile])
	if err != nil {
		return err
	}

	policies, err := loadPolicies(flags[policiesFile])
	if err != nil {
		return err
	}

	authenticator, err := auth.NewAuthenticator(ctx, []byte(flags[jwtSecret]), policies)
	if err != nil {
		return err
	}

	db, err := database.Connect(newConnector(ctx))
	if err != nil {
		return err
	}

	publishers, closePublishers, err := newPublishers(ctx, flags, cfg)
	if err != nil {
		return err
	}
	defer closePublishers()

	m := metrics.New()
	app := application.New(db, cfg, m.ObserveDashboard, publishers...)

	if err := app.Seed(ctx, cfg.Projects); err != nil {
		log.Error().Err(err).Msg("seeding failed, continuing with what could be stored")
	}

	if cfg.Watchdog.Enabled() {
		app.Watchdog.Start(ctx)
		defer app.Watchdog.Stop()
	}

	if flags[mqttBrokerURL] != "" {
		client, err := mqtt.Connect(ctx, mqtt.LoadConfigFromEnv(flags[mqttBrokerURL]), log)
		if err != nil {
			return err
		}
		defer client.Close()

		for topic, handler := range app.Ingester.Handlers(ctx) {
			if err := client.Subscribe(topic, m.Ingested(topic, handler)); err != nil {
				return err
			}
		}
	}

	limit, _ := strconv.Atoi(flags[rateLimit])
	r := router.New(router.Options{ServiceName: serviceName, RateLimit: limit, Metrics: m.Middleware})
	api.RegisterHandlers(ctx, r, authenticator, app)

	public := newServer(ctx, net.JoinHostPort(flags[listenAddress], flags[servicePort]), r)
	control := newServer(ctx, net.JoinHostPort(flags[listenAddress], flags[controlPort]), controlRouter(m))

	return serve(ctx, public, control)
}

func newConnector(ctx context.Context) database.ConnectorFunc {
	log := logging.GetFromContext(ctx)
	cfg := database.LoadConfigFromEnv(ctx)

	if cfg.Host == "" {
		log.Warn().Msg("no database host configured, running on in-memory sqlite")
		return database.NewSQLiteConnector(log)
	}

	return database.NewPostgreSQLConnector(ctx, cfg)
}

func newPublishers(ctx context.Context, flags flagMap, cfg *application.Config) ([]activitylogs.Publisher, func(), error) {
	log := logging.GetFromContext(ctx)

	webhooks, err := events.New(&cfg.Config)
	if err != nil {
		return nil, nil, err
	}

	publishers := []activitylogs.Publisher{webhooks}

	if flags[rabbitMQURL] == "" {
		return publishers, func() {}, nil
	}

	amqp, err := messaging.NewPublisher(ctx, messaging.LoadConfiguration(flags[rabbitMQURL]))
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		if err := amqp.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close amqp publisher")
		}
	}

	return append(publishers, amqp), closer, nil
}

func controlRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func newServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// serve runs the servers until the context is cancelled or one of them fails.
func serve(ctx context.Context, servers ...*http.Server) error {
	log := logging.GetFromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range servers {
		s := s
		g.Go(func() error {
			log.Info().Str("addr", s.Addr).Msg("listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		var errs []error
		for _, s := range servers {
			errs = append(errs, s.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func loadConfiguration(ctx context.Context, path string) (*application.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log := logging.GetFromContext(ctx)
			log.Warn().Str("file", path).Msg("no configuration file, using defaults")
			return &application.Config{}, nil
		}
		return nil, err
	}
	defer f.Close()

	return application.LoadConfiguration(f)
}

func loadPolicies(path string) (io.Reader, error) {
	if path == "" {
		return bytes.NewReader(auth.DefaultPolicies), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(b), nil
}

func parseExternalConfig(logger zerolog.Logger, flags flagMap) flagMap {
	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault

	flags[listenAddress] = envOrDef(logger, "LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef(logger, "SERVICE_PORT", flags[servicePort])
	flags[controlPort] = envOrDef(logger, "CONTROL_PORT", flags[controlPort])

	flags[policiesFile] = envOrDef(logger, "POLICIES_FILE", flags[policiesFile])
	flags[configurationFile] = envOrDef(logger, "CONFIG_FILE", flags[configurationFile])
	flags[jwtSecret] = envOrDef(logger, "JWT_SECRET", flags[jwtSecret])
	flags[rateLimit] = envOrDef(logger, "RATE_LIMIT", flags[rateLimit])

	flags[rabbitMQURL] = envOrDef(logger, "RABBITMQ_URL", flags[rabbitMQURL])
	flags[mqttBrokerURL] = envOrDef(logger, "MQTT_BROKER_URL", flags[mqttBrokerURL])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("policies", "an authorization policy file", apply(policiesFile))
	flag.Func("config", "configuration file with dashboard settings and seed data", apply(configurationFile))
	flag.Parse()

	return flags
}

func exitIf(err error, logger zerolog.Logger, msg string) {
	if err != nil {
		logger.Fatal().Err(err).Msg(msg)
	}
}
