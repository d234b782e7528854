package repos

import (
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/repos/registry"
	"github.com/pawsense/pawsense-backend/internal/data/repos/telemetry"
	"github.com/pawsense/pawsense-backend/internal/data/repos/user"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo

type DeviceRepo = registry.DeviceRepo
type PetRepo = registry.PetRepo
type BindingRepo = registry.BindingRepo

type SessionRepo = telemetry.SessionRepo
type RecordRepo = telemetry.RecordRepo
type AlertRepo = telemetry.AlertRepo
type AnalysisRepo = telemetry.AnalysisRepo

type SessionFilter = telemetry.SessionFilter
type AlertFilter = telemetry.AlertFilter
type AnalysisFilter = telemetry.AnalysisFilter

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }

func NewDeviceRepo(db *gorm.DB, baseLog *logger.Logger) DeviceRepo {
	return registry.NewDeviceRepo(db, baseLog)
}
func NewPetRepo(db *gorm.DB, baseLog *logger.Logger) PetRepo { return registry.NewPetRepo(db, baseLog) }
func NewBindingRepo(db *gorm.DB, baseLog *logger.Logger) BindingRepo {
	return registry.NewBindingRepo(db, baseLog)
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return telemetry.NewSessionRepo(db, baseLog)
}
func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
	return telemetry.NewRecordRepo(db, baseLog)
}
func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return telemetry.NewAlertRepo(db, baseLog)
}
func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return telemetry.NewAnalysisRepo(db, baseLog)
}
