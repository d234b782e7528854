package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Pet struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index;column:owner_id" json:"owner_id"`

	Name    string     `gorm:"not null;column:name" json:"name"`
	Species string     `gorm:"column:species;not null;default:'dog'" json:"species"`
	Breed   string     `gorm:"column:breed" json:"breed"`
	Gender  string     `gorm:"column:gender" json:"gender"`
	BirthAt *time.Time `gorm:"column:birth_at" json:"birth_at,omitempty"`

	WeightKg *float64 `gorm:"column:weight_kg" json:"weight_kg,omitempty"`

	AvatarBucketKey string `gorm:"column:avatar_bucket_key" json:"avatar_bucket_key"`
	AvatarURL       string `gorm:"column:avatar_url" json:"avatar_url"`
	AvatarColor     string `gorm:"column:avatar_color" json:"avatar_color"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Pet) TableName() string { return "pet" }
