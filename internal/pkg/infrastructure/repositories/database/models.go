package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Base struct {
	ID        string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type Project struct {
	Base

	Name        string `gorm:"uniqueIndex;size:255;not null"`
	Description string
}

type Gateway struct {
	Base

	ExternalID  string `gorm:"uniqueIndex;size:255;not null"`
	Name        string `gorm:"uniqueIndex;size:255;not null"`
	Description string

	ProjectID string   `gorm:"size:36;index;not null"`
	Project   *Project `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Settings GatewaySettings `gorm:"embedded;embeddedPrefix:settings_"`
}

type GatewaySettings struct {
	RefreshDataAfterTime int `gorm:"not null;default:0"`
}

// Device is a modbus style endpoint. UnitID is the gateway local device id and is unique
// within a gateway.
type Device struct {
	Base

	GatewayID string   `gorm:"size:36;not null;uniqueIndex:idx_devices_gateway_unit"`
	Gateway   *Gateway `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	UnitID    int      `gorm:"not null;uniqueIndex:idx_devices_gateway_unit"`

	Type             string `gorm:"size:64;not null"`
	Name             string
	IPAddress        string `gorm:"size:64"`
	Port             int
	StartDataAddress int
	EndDataAddress   int
	State            string `gorm:"size:64"`
}

type DeviceLog struct {
	Base

	DeviceID  string   `gorm:"size:36;index;not null"`
	Device    *Device  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	GatewayID string   `gorm:"size:36;index;not null"`
	Gateway   *Gateway `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Timestamp time.Time `gorm:"index"`
	List      datatypes.JSON
}

type Fault struct {
	Base

	GatewayID string   `gorm:"size:36;index;not null"`
	Gateway   *Gateway `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	DeviceID  *string  `gorm:"size:36;index"`
	Device    *Device  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	Timestamp   time.Time `gorm:"index"`
	Code        string    `gorm:"size:64"`
	Description string
}

type ActivityLog struct {
	Base

	Actor      string `gorm:"size:255;not null"`
	Action     string `gorm:"size:64;not null"`
	TargetType string `gorm:"size:64"`
	TargetID   string `gorm:"size:36"`

	GatewayID *string  `gorm:"size:36;index"`
	Gateway   *Gateway `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	Description string
	Timestamp   time.Time `gorm:"index"`
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Project{}, &Gateway{}, &Device{}, &DeviceLog{}, &Fault{}, &ActivityLog{})
}
