package application

import (
	"io"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/dashboard"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/events"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/watchdog"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	yaml "gopkg.in/yaml.v2"
)

type SeedDevice struct {
	DeviceID         int    `yaml:"deviceId"`
	Type             string `yaml:"type"`
	Name             string `yaml:"name"`
	IPAddress        string `yaml:"ipAddress"`
	Port             int    `yaml:"port"`
	StartDataAddress int    `yaml:"startDataAddress"`
	EndDataAddress   int    `yaml:"endDataAddress"`
}

type SeedGateway struct {
	GatewayID   string                `yaml:"gatewayId"`
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	Settings    types.GatewaySettings `yaml:"settings"`
	Devices     []SeedDevice          `yaml:"devices"`
}

type SeedProject struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Gateways    []SeedGateway `yaml:"gateways"`
}

type Config struct {
	Dashboard     dashboard.Config `yaml:"dashboard"`
	Watchdog      watchdog.Config  `yaml:"watchdog"`
	events.Config `yaml:",inline"`
	Projects      []SeedProject `yaml:"projects"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
