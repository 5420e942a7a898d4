package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var tracer = otel.Tracer("iot-gateway-monitor-client")

var ErrNotFound = errors.New("not found")
var ErrBadRequest = errors.New("bad request")
var ErrUnauthorized = errors.New("unauthorized")

type GatewayMonitorClient interface {
	// Dashboard returns one page of the dashboard of a gateway, by internal id or gatewayId.
	Dashboard(ctx context.Context, gatewayID string, params url.Values) ([]types.DashboardGateway, Page, error)
	QueryGateways(ctx context.Context, params url.Values) (types.Collection[types.Gateway], error)
	GetGateway(ctx context.Context, id string) (types.Gateway, error)
	CreateDevice(ctx context.Context, device types.CreateDevice) (types.Device, error)
	CreateDeviceLog(ctx context.Context, log types.CreateDeviceLog) (types.DeviceLog, error)
	CreateFault(ctx context.Context, fault types.CreateFault) (types.Fault, error)
	Close(ctx context.Context)
}

// Page is the metadata that the dashboard endpoint returns in response headers.
type Page struct {
	CurrentPage  int
	PageSize     int
	TotalPage    int
	TotalElement int64
}

type monitorClient struct {
	url        string
	httpClient *http.Client
}

func New(ctx context.Context, monitorURL, oauthTokenURL, oauthClientID, oauthClientSecret string) (GatewayMonitorClient, error) {
	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	oauthConfig := &clientcredentials.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSecret,
		TokenURL:     oauthTokenURL,
	}

	// fail early if the token endpoint cannot be reached
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	if _, err := oauthConfig.Token(ctx); err != nil {
		return nil, fmt.Errorf("failed to get client credentials from %s: %w", oauthTokenURL, err)
	}

	return &monitorClient{
		url:        strings.TrimSuffix(monitorURL, "/"),
		httpClient: oauthConfig.Client(ctx),
	}, nil
}

func (c *monitorClient) Dashboard(ctx context.Context, gatewayID string, params url.Values) ([]types.DashboardGateway, Page, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-dashboard")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if params == nil {
		params = url.Values{}
	}
	params.Set("gatewayId", gatewayID)

	result := []types.DashboardGateway{}
	header, err := c.do(ctx, http.MethodGet, "/api/v0/dashboard?"+params.Encode(), nil, &result)
	if err != nil {
		return nil, Page{}, err
	}

	page := Page{}
	page.CurrentPage, _ = strconv.Atoi(header.Get("X-Current-Page"))
	page.PageSize, _ = strconv.Atoi(header.Get("X-Page-Size"))
	page.TotalPage, _ = strconv.Atoi(header.Get("X-Total-Page"))
	page.TotalElement, _ = strconv.ParseInt(header.Get("X-Total-Element"), 10, 64)

	return result, page, nil
}

func (c *monitorClient) QueryGateways(ctx context.Context, params url.Values) (types.Collection[types.Gateway], error) {
	var err error
	ctx, span := tracer.Start(ctx, "query-gateways")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := types.Collection[types.Gateway]{}
	_, err = c.do(ctx, http.MethodGet, "/api/v0/gateways?"+params.Encode(), nil, &result)
	return result, err
}

func (c *monitorClient) GetGateway(ctx context.Context, id string) (types.Gateway, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-gateway")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := types.Gateway{}
	_, err = c.do(ctx, http.MethodGet, "/api/v0/gateways/"+url.PathEscape(id), nil, &result)
	return result, err
}

func (c *monitorClient) CreateDevice(ctx context.Context, device types.CreateDevice) (types.Device, error) {
	var err error
	ctx, span := tracer.Start(ctx, "create-device")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := types.Device{}
	_, err = c.do(ctx, http.MethodPost, "/api/v0/devices", device, &result)
	return result, err
}

func (c *monitorClient) CreateDeviceLog(ctx context.Context, log types.CreateDeviceLog) (types.DeviceLog, error) {
	var err error
	ctx, span := tracer.Start(ctx, "create-device-log")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := types.DeviceLog{}
	_, err = c.do(ctx, http.MethodPost, "/api/v0/deviceLogs", log, &result)
	return result, err
}

func (c *monitorClient) CreateFault(ctx context.Context, fault types.CreateFault) (types.Fault, error) {
	var err error
	ctx, span := tracer.Start(ctx, "create-fault")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := types.Fault{}
	_, err = c.do(ctx, http.MethodPost, "/api/v0/faults", fault, &result)
	return result, err
}

func (c *monitorClient) Close(ctx context.Context) {
	c.httpClient.CloseIdleConnections()
}

func (c *monitorClient) do(ctx context.Context, method, path string, body, result any) (http.Header, error) {
	log := logging.GetFromContext(ctx)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("request failed")
		return nil, statusError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return resp.Header, nil
}

func statusError(status int, body []byte) error {
	e := struct {
		Message string `json:"message"`
	}{}
	_ = json.Unmarshal(body, &e)

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, e.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, e.Message)
	}

	return fmt.Errorf("request failed with status code %d", status)
}
