package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/repos"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type AlertQuery struct {
	DeviceID       *uuid.UUID
	PetID          *uuid.UUID
	Type           string
	UnreadOnly     bool
	UnresolvedOnly bool
	Limit          int
	Offset         int
}

// AlertService is the user-facing alert surface. Listing is scoped the same
// way session queries are; mutations check scope first and report an
// out-of-scope alert as missing.
type AlertService interface {
	List(ctx context.Context, userID uuid.UUID, q AlertQuery) ([]*telemetry.HealthAlert, error)
	MarkRead(ctx context.Context, userID uuid.UUID, alertID uuid.UUID) (*telemetry.HealthAlert, error)
	Resolve(ctx context.Context, userID uuid.UUID, alertID uuid.UUID) (*telemetry.HealthAlert, error)
}

type alertService struct {
	log      *logger.Logger
	pets     repos.PetRepo
	bindings repos.BindingRepo
	alerts   repos.AlertRepo
}

func NewAlertService(baseLog *logger.Logger, pets repos.PetRepo, bindings repos.BindingRepo, alerts repos.AlertRepo) AlertService {
	return &alertService{
		log:      baseLog.With("service", "AlertService"),
		pets:     pets,
		bindings: bindings,
		alerts:   alerts,
	}
}

func (s *alertService) List(ctx context.Context, userID uuid.UUID, q AlertQuery) ([]*telemetry.HealthAlert, error) {
	if s == nil || s.alerts == nil {
		return nil, fmt.Errorf("alertService not configured")
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if scope.Empty() {
		return []*telemetry.HealthAlert{}, nil
	}

	filter := repos.AlertFilter{
		DeviceIDs:      scope.DeviceIDs,
		Type:           telemetry.AlertType(q.Type),
		UnreadOnly:     q.UnreadOnly,
		UnresolvedOnly: q.UnresolvedOnly,
		Limit:          clampLimit(q.Limit),
		Offset:         q.Offset,
	}
	switch {
	case q.DeviceID != nil:
		if !scope.OwnsDevice(*q.DeviceID) {
			return []*telemetry.HealthAlert{}, nil
		}
		filter.DeviceIDs = []uuid.UUID{*q.DeviceID}
	case q.PetID != nil:
		if !scope.OwnsPet(*q.PetID) {
			return []*telemetry.HealthAlert{}, nil
		}
		filter.DeviceIDs = nil
		filter.PetID = q.PetID
	}
	if len(filter.DeviceIDs) == 0 && filter.PetID == nil {
		return []*telemetry.HealthAlert{}, nil
	}

	return s.alerts.List(ctx, nil, filter)
}

func (s *alertService) MarkRead(ctx context.Context, userID uuid.UUID, alertID uuid.UUID) (*telemetry.HealthAlert, error) {
	alert, err := s.authorizedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsRead {
		return alert, nil
	}

	if err := s.alerts.MarkRead(ctx, nil, alertID); err != nil {
		return nil, fmt.Errorf("mark alert read: %w", err)
	}
	return s.alerts.GetByID(ctx, nil, alertID)
}

func (s *alertService) Resolve(ctx context.Context, userID uuid.UUID, alertID uuid.UUID) (*telemetry.HealthAlert, error) {
	alert, err := s.authorizedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsResolved {
		return alert, nil
	}

	if err := s.alerts.Resolve(ctx, nil, alertID, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	s.log.Info("Alert resolved", "alert_id", alertID, "resolved_by", userID)
	return s.alerts.GetByID(ctx, nil, alertID)
}

func (s *alertService) authorizedAlert(ctx context.Context, userID uuid.UUID, alertID uuid.UUID) (*telemetry.HealthAlert, error) {
	if s == nil || s.alerts == nil {
		return nil, fmt.Errorf("alertService not configured")
	}

	alert, err := s.alerts.GetByID(ctx, nil, alertID)
	if err != nil {
		return nil, err
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if scope.OwnsDevice(alert.DeviceID) {
		return alert, nil
	}
	if alert.PetID != nil && scope.OwnsPet(*alert.PetID) {
		return alert, nil
	}
	return nil, fmt.Errorf("alert %s: %w", alertID, gorm.ErrRecordNotFound)
}
