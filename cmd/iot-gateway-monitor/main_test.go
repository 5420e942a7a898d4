package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/metrics"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/router"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/presentation/api"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/presentation/api/auth"
	"github.com/matryer/is"
)

func TestControlEndpoints(t *testing.T) {
	is := is.New(t)
	server := httptest.NewServer(controlRouter(metrics.New()))
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodGet, "/health")
	is.Equal(resp.StatusCode, http.StatusNoContent)

	resp, body := testRequest(is, server, http.MethodGet, "/metrics")
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, "go_goroutines"))
}

func TestPublicRouterRequiresToken(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	flags := defaultFlags()
	t.Setenv("POSTGRES_HOST", "")

	db, err := database.Connect(newConnector(ctx))
	is.NoErr(err)

	cfg, err := loadConfiguration(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	is.NoErr(err)

	publishers, closer, err := newPublishers(ctx, flags, cfg)
	is.NoErr(err)
	defer closer()
	is.Equal(len(publishers), 1)

	policies, err := loadPolicies("")
	is.NoErr(err)

	authenticator, err := auth.NewAuthenticator(ctx, []byte("secret"), policies)
	is.NoErr(err)

	m := metrics.New()
	app := application.New(db, cfg, m.ObserveDashboard, publishers...)
	r := api.RegisterHandlers(ctx, router.New(router.Options{ServiceName: serviceName, Metrics: m.Middleware}), authenticator, app)

	server := httptest.NewServer(r)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodGet, "/health")
	is.Equal(resp.StatusCode, http.StatusNoContent)

	resp, _ = testRequest(is, server, http.MethodGet, "/api/v0/dashboard?gatewayId=GW1")
	is.Equal(resp.StatusCode, http.StatusUnauthorized)
}

func TestConfigurationFileIsLoaded(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	is.NoErr(os.WriteFile(path, []byte("dashboard:\n  concurrency: 2\n"), 0o600))

	cfg, err := loadConfiguration(context.Background(), path)
	is.NoErr(err)
	is.Equal(cfg.Dashboard.Concurrency, 2)
}

func TestPolicyFileOverridesEmbeddedPolicy(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "authz.rego")
	is.NoErr(os.WriteFile(path, []byte("package iotgatewaymonitor.authz\n\nallow = true\n"), 0o600))

	policies, err := loadPolicies(path)
	is.NoErr(err)

	b, err := io.ReadAll(policies)
	is.NoErr(err)
	is.True(strings.Contains(string(b), "allow = true"))
}

func testRequest(is *is.I, ts *httptest.Server, method, path string) (*http.Response, string) {
	req, err := http.NewRequest(method, ts.URL+path, nil)
	is.NoErr(err)

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	is.NoErr(err)

	return resp, string(respBody)
}
