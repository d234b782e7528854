package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PetDeviceBinding links a device to the pet wearing it. At most one active
// binding exists per device (partial unique index); history rows keep
// IsActive=false with UnboundAt set.
type PetDeviceBinding struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PetID    uuid.UUID `gorm:"type:uuid;not null;index;column:pet_id" json:"pet_id"`
	DeviceID uuid.UUID `gorm:"type:uuid;not null;index;column:device_id" json:"device_id"`

	IsActive  bool       `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	BoundAt   time.Time  `gorm:"column:bound_at;not null;default:now()" json:"bound_at"`
	UnboundAt *time.Time `gorm:"column:unbound_at" json:"unbound_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PetDeviceBinding) TableName() string { return "pet_device_binding" }
