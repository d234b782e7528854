package app

import (
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/repos"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type Repos struct {
	User repos.UserRepo

	Pet     repos.PetRepo
	Device  repos.DeviceRepo
	Binding repos.BindingRepo

	Session  repos.SessionRepo
	Record   repos.RecordRepo
	Alert    repos.AlertRepo
	Analysis repos.AnalysisRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User: repos.NewUserRepo(db, log),

		Pet:     repos.NewPetRepo(db, log),
		Device:  repos.NewDeviceRepo(db, log),
		Binding: repos.NewBindingRepo(db, log),

		Session:  repos.NewSessionRepo(db, log),
		Record:   repos.NewRecordRepo(db, log),
		Alert:    repos.NewAlertRepo(db, log),
		Analysis: repos.NewAnalysisRepo(db, log),
	}
}
