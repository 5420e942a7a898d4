package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/devices"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/gateways"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/projects"
	"github.com/diwise/iot-gateway-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/samber/lo"
)

const seedActor string = "seed"

// Seed creates the configured projects, gateways and devices. Entities that already
// exist are left untouched so that seeding can run on every start.
func (a *App) Seed(ctx context.Context, seed []SeedProject) error {
	log := logging.GetFromContext(ctx)
	ctx = activitylogs.WithActor(ctx, seedActor)

	var errs []error

	for _, sp := range seed {
		project, err := a.seedProject(ctx, sp)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, sg := range sp.Gateways {
			gw, err := a.seedGateway(ctx, project.ID, sg)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			for _, sd := range sg.Devices {
				errs = append(errs, a.seedDevice(ctx, gw.ID, sd))
			}
		}
	}

	err := errors.Join(errs...)
	if err == nil {
		log.Info().Int("projects", len(seed)).Msg("seeded configured projects")
	}

	return err
}

func (a *App) seedProject(ctx context.Context, sp SeedProject) (types.Project, error) {
	p, err := a.Projects.Create(ctx, types.CreateProject{Name: sp.Name, Description: sp.Description})
	if err == nil {
		return p, nil
	}

	if !errors.Is(err, projects.ErrProjectAlreadyExists) {
		return types.Project{}, fmt.Errorf("could not seed project %s: %w", sp.Name, err)
	}

	result, err := a.Projects.Query(ctx, projects.Filter{Keyword: sp.Name}, database.QueryOptions{PageSize: 100})
	if err != nil {
		return types.Project{}, err
	}

	p, ok := lo.Find(result.Content, func(p types.Project) bool { return p.Name == sp.Name })
	if !ok {
		return types.Project{}, fmt.Errorf("could not seed project %s: %w", sp.Name, projects.ErrProjectNotFound)
	}

	return p, nil
}

func (a *App) seedGateway(ctx context.Context, projectID string, sg SeedGateway) (types.Gateway, error) {
	gw, err := a.Gateways.GetByGatewayID(ctx, sg.GatewayID)
	if err == nil {
		return gw, nil
	}

	if !errors.Is(err, gateways.ErrGatewayNotFound) {
		return types.Gateway{}, err
	}

	gw, err = a.Gateways.Create(ctx, types.CreateGateway{
		ProjectID:   projectID,
		GatewayID:   sg.GatewayID,
		Name:        sg.Name,
		Description: sg.Description,
	})
	if err != nil {
		return types.Gateway{}, fmt.Errorf("could not seed gateway %s: %w", sg.GatewayID, err)
	}

	if sg.Settings.RefreshDataAfterTime > 0 {
		return a.Gateways.UpdateSettings(ctx, gw.ID, types.UpdateGatewaySettings{
			RefreshDataAfterTime: &sg.Settings.RefreshDataAfterTime,
		})
	}

	return gw, nil
}

func (a *App) seedDevice(ctx context.Context, gatewayID string, sd SeedDevice) error {
	_, err := a.Devices.GetByUnit(ctx, gatewayID, sd.DeviceID)
	if err == nil {
		return nil
	}

	if !errors.Is(err, devices.ErrDeviceNotFound) {
		return err
	}

	_, err = a.Devices.Create(ctx, types.CreateDevice{
		GatewayID:        gatewayID,
		Type:             sd.Type,
		DeviceID:         &sd.DeviceID,
		Name:             sd.Name,
		IPAddress:        sd.IPAddress,
		Port:             sd.Port,
		StartDataAddress: sd.StartDataAddress,
		EndDataAddress:   sd.EndDataAddress,
	})
	if err != nil {
		return fmt.Errorf("could not seed device %d: %w", sd.DeviceID, err)
	}

	return nil
}
