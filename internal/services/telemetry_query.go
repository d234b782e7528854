package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/repos"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

type SessionQuery struct {
	DeviceID *uuid.UUID
	PetID    *uuid.UUID
	Limit    int
	Offset   int
}

type AnalysisQuery struct {
	SessionID *uuid.UUID
	DeviceID  *uuid.UUID
	PetID     *uuid.UUID
	Limit     int
	Offset    int
}

// TelemetryQueryService is the read side for sessions and analyses. Every
// call is scoped to what the user can reach through pet ownership; an
// out-of-scope id behaves like a missing one.
type TelemetryQueryService interface {
	ListSessions(ctx context.Context, userID uuid.UUID, q SessionQuery) ([]*telemetry.SensorDataSession, error)
	GetSession(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*telemetry.SessionAggregate, error)
	ListAnalyses(ctx context.Context, userID uuid.UUID, q AnalysisQuery) ([]*telemetry.SensorAnalysis, error)
	// LatestAnalysisForPet resolves across the pet id or its currently
	// bound devices; nil means no analysis yet, which is not an error.
	LatestAnalysisForPet(ctx context.Context, userID uuid.UUID, petID uuid.UUID) (*telemetry.SensorAnalysis, error)
}

type telemetryQueryService struct {
	log      *logger.Logger
	pets     repos.PetRepo
	bindings repos.BindingRepo
	sessions repos.SessionRepo
	records  repos.RecordRepo
	analyses repos.AnalysisRepo
}

func NewTelemetryQueryService(
	baseLog *logger.Logger,
	pets repos.PetRepo,
	bindings repos.BindingRepo,
	sessions repos.SessionRepo,
	records repos.RecordRepo,
	analyses repos.AnalysisRepo,
) TelemetryQueryService {
	return &telemetryQueryService{
		log:      baseLog.With("service", "TelemetryQueryService"),
		pets:     pets,
		bindings: bindings,
		sessions: sessions,
		records:  records,
		analyses: analyses,
	}
}

func (s *telemetryQueryService) ListSessions(ctx context.Context, userID uuid.UUID, q SessionQuery) ([]*telemetry.SensorDataSession, error) {
	if s == nil || s.sessions == nil {
		return nil, fmt.Errorf("telemetryQueryService not configured")
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if scope.Empty() {
		return []*telemetry.SensorDataSession{}, nil
	}

	deviceIDs := scope.DeviceIDs
	switch {
	case q.DeviceID != nil:
		if !scope.OwnsDevice(*q.DeviceID) {
			return []*telemetry.SensorDataSession{}, nil
		}
		deviceIDs = []uuid.UUID{*q.DeviceID}
	case q.PetID != nil:
		if !scope.OwnsPet(*q.PetID) {
			return []*telemetry.SensorDataSession{}, nil
		}
		deviceIDs, err = s.devicesBoundTo(ctx, *q.PetID)
		if err != nil {
			return nil, err
		}
	}
	if len(deviceIDs) == 0 {
		return []*telemetry.SensorDataSession{}, nil
	}

	return s.sessions.List(ctx, nil, repos.SessionFilter{
		DeviceIDs: deviceIDs,
		Limit:     clampLimit(q.Limit),
		Offset:    q.Offset,
	})
}

func (s *telemetryQueryService) GetSession(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*telemetry.SessionAggregate, error) {
	if s == nil || s.sessions == nil || s.records == nil {
		return nil, fmt.Errorf("telemetryQueryService not configured")
	}

	session, err := s.sessions.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if !scope.OwnsDevice(session.DeviceID) {
		// Out of scope reads like absent; existence stays private.
		return nil, fmt.Errorf("session %s: %w", id, gorm.ErrRecordNotFound)
	}

	return s.records.LoadAggregate(ctx, nil, id)
}

func (s *telemetryQueryService) ListAnalyses(ctx context.Context, userID uuid.UUID, q AnalysisQuery) ([]*telemetry.SensorAnalysis, error) {
	if s == nil || s.analyses == nil {
		return nil, fmt.Errorf("telemetryQueryService not configured")
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if scope.Empty() {
		return []*telemetry.SensorAnalysis{}, nil
	}

	if q.SessionID != nil {
		record, err := s.analyses.GetBySessionID(ctx, nil, *q.SessionID)
		if err != nil {
			return nil, err
		}
		if record == nil || !s.inScope(scope, record) {
			return []*telemetry.SensorAnalysis{}, nil
		}
		return []*telemetry.SensorAnalysis{record}, nil
	}

	filter := repos.AnalysisFilter{
		DeviceIDs: scope.DeviceIDs,
		PetIDs:    scope.PetIDs,
		Limit:     clampLimit(q.Limit),
		Offset:    q.Offset,
	}
	switch {
	case q.DeviceID != nil:
		if !scope.OwnsDevice(*q.DeviceID) {
			return []*telemetry.SensorAnalysis{}, nil
		}
		filter.DeviceIDs = []uuid.UUID{*q.DeviceID}
		filter.PetIDs = nil
	case q.PetID != nil:
		if !scope.OwnsPet(*q.PetID) {
			return []*telemetry.SensorAnalysis{}, nil
		}
		filter.DeviceIDs = nil
		filter.PetIDs = []uuid.UUID{*q.PetID}
	}

	return s.analyses.List(ctx, nil, filter)
}

func (s *telemetryQueryService) LatestAnalysisForPet(ctx context.Context, userID uuid.UUID, petID uuid.UUID) (*telemetry.SensorAnalysis, error) {
	if s == nil || s.analyses == nil {
		return nil, fmt.Errorf("telemetryQueryService not configured")
	}

	scope, err := resolveScope(ctx, s.pets, s.bindings, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ownership: %w", err)
	}
	if !scope.OwnsPet(petID) {
		return nil, nil
	}

	deviceIDs, err := s.devicesBoundTo(ctx, petID)
	if err != nil {
		return nil, err
	}
	return s.analyses.Latest(ctx, nil, repos.AnalysisFilter{
		DeviceIDs: deviceIDs,
		PetIDs:    []uuid.UUID{petID},
	})
}

func (s *telemetryQueryService) devicesBoundTo(ctx context.Context, petID uuid.UUID) ([]uuid.UUID, error) {
	bindings, err := s.bindings.ListActiveByPetIDs(ctx, nil, []uuid.UUID{petID})
	if err != nil {
		return nil, fmt.Errorf("resolve pet bindings: %w", err)
	}
	deviceIDs := make([]uuid.UUID, 0, len(bindings))
	for _, binding := range bindings {
		deviceIDs = append(deviceIDs, binding.DeviceID)
	}
	return deviceIDs, nil
}

func (s *telemetryQueryService) inScope(scope *ownershipScope, record *telemetry.SensorAnalysis) bool {
	if scope.OwnsDevice(record.DeviceID) {
		return true
	}
	return record.PetID != nil && scope.OwnsPet(*record.PetID)
}
