package types

import "time"

type CreateProject struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type UpdateProject struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Description *string `json:"description"`
}

type CreateGateway struct {
	ProjectID   string `json:"projectId" validate:"required"`
	GatewayID   string `json:"gatewayId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type UpdateGateway struct {
	ProjectID   *string `json:"projectId" validate:"omitempty,min=1"`
	GatewayID   *string `json:"gatewayId" validate:"omitempty,min=1"`
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Description *string `json:"description"`
}

type UpdateGatewaySettings struct {
	RefreshDataAfterTime *int `json:"refreshDataAfterTime" validate:"required,min=0"`
}

type CreateDevice struct {
	GatewayID        string `json:"gatewayId" validate:"required"`
	Type             string `json:"type" validate:"required"`
	DeviceID         *int   `json:"deviceId" validate:"required,min=0"`
	Name             string `json:"name"`
	IPAddress        string `json:"ipAddress" validate:"omitempty,ip"`
	Port             int    `json:"port" validate:"min=0,max=65535"`
	StartDataAddress int    `json:"startDataAddress" validate:"min=0"`
	EndDataAddress   int    `json:"endDataAddress" validate:"min=0"`
	State            string `json:"state"`
}

type UpdateDevice struct {
	GatewayID        *string `json:"gatewayId" validate:"omitempty,min=1"`
	Type             *string `json:"type" validate:"omitempty,min=1"`
	DeviceID         *int    `json:"deviceId" validate:"omitempty,min=0"`
	Name             *string `json:"name"`
	IPAddress        *string `json:"ipAddress" validate:"omitempty,ip"`
	Port             *int    `json:"port" validate:"omitempty,min=0,max=65535"`
	StartDataAddress *int    `json:"startDataAddress" validate:"omitempty,min=0"`
	EndDataAddress   *int    `json:"endDataAddress" validate:"omitempty,min=0"`
	State            *string `json:"state"`
}

type CreateDeviceLog struct {
	DeviceID  string     `json:"deviceId" validate:"required"`
	Timestamp *time.Time `json:"timestamp"`
	List      []Reading  `json:"list" validate:"dive"`
}

type UpdateDeviceLog struct {
	Timestamp *time.Time `json:"timestamp"`
	List      []Reading  `json:"list" validate:"omitempty,dive"`
}

type CreateFault struct {
	GatewayID   string     `json:"gatewayId" validate:"required"`
	DeviceID    string     `json:"deviceId"`
	Timestamp   *time.Time `json:"timestamp"`
	Code        string     `json:"code"`
	Description string     `json:"description"`
}

type UpdateFault struct {
	Code        *string `json:"code"`
	Description *string `json:"description"`
}

type CreateActivityLog struct {
	Actor       string     `json:"actor" validate:"required"`
	Action      string     `json:"action" validate:"required"`
	TargetType  string     `json:"targetType"`
	TargetID    string     `json:"targetId"`
	GatewayID   string     `json:"gatewayId"`
	Description string     `json:"description"`
	Timestamp   *time.Time `json:"timestamp"`
}

type UpdateActivityLog struct {
	Description *string `json:"description"`
}
