package types

import (
	"time"
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type GatewaySettings struct {
	RefreshDataAfterTime int `json:"refreshDataAfterTime" yaml:"refreshDataAfterTime"`
}

type Gateway struct {
	ID          string          `json:"id"`
	GatewayID   string          `json:"gatewayId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ProjectID   string          `json:"projectId"`
	Project     *Project        `json:"project,omitempty"`
	Settings    GatewaySettings `json:"settings"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Device struct {
	ID               string    `json:"id"`
	GatewayID        string    `json:"gatewayId"`
	Gateway          *Gateway  `json:"gateway,omitempty"`
	DeviceID         int       `json:"deviceId"`
	Type             string    `json:"type"`
	Name             string    `json:"name,omitempty"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	Port             int       `json:"port,omitempty"`
	StartDataAddress int       `json:"startDataAddress,omitempty"`
	EndDataAddress   int       `json:"endDataAddress,omitempty"`
	State            string    `json:"state,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Reading struct {
	Name    string  `json:"name"`
	Address int     `json:"address,omitempty"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
}

type DeviceLog struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Device    *Device   `json:"device,omitempty"`
	GatewayID string    `json:"gatewayId"`
	Gateway   *Gateway  `json:"gateway,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	List      []Reading `json:"list"`
	CreatedAt time.Time `json:"createdAt"`
}

type Fault struct {
	ID          string    `json:"id"`
	GatewayID   string    `json:"gatewayId"`
	Gateway     *Gateway  `json:"gateway,omitempty"`
	DeviceID    string    `json:"deviceId,omitempty"`
	Device      *Device   `json:"device,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Code        string    `json:"code,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ActivityLog struct {
	ID          string    `json:"id"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	TargetType  string    `json:"targetType,omitempty"`
	TargetID    string    `json:"targetId,omitempty"`
	GatewayID   string    `json:"gatewayId,omitempty"`
	Gateway     *Gateway  `json:"gateway,omitempty"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Collection[T any] struct {
	Content      []T   `json:"content"`
	CurrentPage  int   `json:"currentPage"`
	PageSize     int   `json:"pageSize"`
	TotalPage    int   `json:"totalPage"`
	TotalElement int64 `json:"totalElement"`
}

type DashboardDevice struct {
	Device
	DataList []Reading `json:"dataList"`
}

type DashboardGateway struct {
	Gateway
	Devices []DashboardDevice `json:"devices"`
	Faults  []Fault           `json:"faults"`
}
