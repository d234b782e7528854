package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/clients/redis"
	"github.com/pawsense/pawsense-backend/internal/data/repos"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/observability"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// IngestionService is the upload entry point. It validates the wire payload,
// hands persistence to the ingestion aggregate, and fans out post-commit side
// effects (alert events, the analysis trigger) that must never roll back the
// stored session.
type IngestionService interface {
	Ingest(ctx context.Context, payload *ingest.Payload, authDeviceExternalID string) (*domainagg.IngestSessionResult, error)
}

type ingestionService struct {
	log      *logger.Logger
	agg      domainagg.IngestionAggregate
	sessions repos.SessionRepo
	alerts   repos.AlertRepo
	bus      redis.AlertBus
	analysis AnalysisTrigger
}

// AnalysisTrigger is the slice of the analysis dispatcher ingestion needs.
type AnalysisTrigger interface {
	Submit(sessionID uuid.UUID) bool
}

func NewIngestionService(
	baseLog *logger.Logger,
	agg domainagg.IngestionAggregate,
	sessions repos.SessionRepo,
	alerts repos.AlertRepo,
	bus redis.AlertBus,
	analysis AnalysisTrigger,
) IngestionService {
	return &ingestionService{
		log:      baseLog.With("service", "IngestionService"),
		agg:      agg,
		sessions: sessions,
		alerts:   alerts,
		bus:      bus,
		analysis: analysis,
	}
}

func (is *ingestionService) Ingest(ctx context.Context, payload *ingest.Payload, authDeviceExternalID string) (*domainagg.IngestSessionResult, error) {
	const op = "Telemetry.Ingestion.IngestSession"
	start := time.Now()
	metrics := observability.Current()
	if is == nil || is.agg == nil || is.sessions == nil || is.alerts == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "ingestion service not configured", nil)
	}
	if payload == nil {
		metrics.ObserveIngest("rejected", time.Since(start))
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing payload", nil)
	}

	// Validation runs before identity checks and before any persistence, and
	// reports every violation at once.
	if err := ingest.Validate(payload); err != nil {
		metrics.ObserveIngest("rejected", time.Since(start))
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			observability.ReportIngestQuality(ctx, is.log, "upload_validation", ve.Fields, is.qualityMeta(payload))
			return nil, domainagg.NewErrorWithDetails(domainagg.CodeValidation, op,
				"payload validation failed",
				map[string]interface{}{"fields": ve.Fields}, err)
		}
		return nil, domainagg.Wrap(domainagg.CodeValidation, op, err)
	}

	res, err := is.agg.IngestSession(ctx, domainagg.IngestSessionInput{
		Payload:              payload,
		AuthDeviceExternalID: strings.TrimSpace(authDeviceExternalID),
	})
	if err != nil {
		metrics.ObserveIngest(ingestResultForError(err), time.Since(start))
		return nil, is.resolveConflict(ctx, payload, err)
	}
	metrics.ObserveIngest("accepted", time.Since(start))

	is.log.Info("Session ingested",
		"session_id", res.SessionID,
		"external_session_id", payload.Metadata.SessionID,
		"device", payload.Metadata.DeviceID,
		"alerts", res.AlertsCount,
	)

	is.publishAlerts(ctx, &res)
	if is.analysis != nil {
		if !is.analysis.Submit(res.SessionID) {
			is.log.Warn("Analysis queue rejected session", "session_id", res.SessionID)
		}
	}
	return &res, nil
}

// resolveConflict backfills the existing session id when the duplicate lost a
// race to the unique index instead of the in-transaction existence check.
func (is *ingestionService) resolveConflict(ctx context.Context, payload *ingest.Payload, err error) error {
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		return err
	}
	if details := domainagg.DetailsOf(err); details != nil {
		if _, ok := details[domainagg.DetailExistingSessionID]; ok {
			return err
		}
	}

	existing, lookupErr := is.sessions.GetBySessionID(ctx, nil, payload.Metadata.SessionID)
	if lookupErr != nil || existing == nil {
		if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			is.log.Warn("Duplicate session lookup failed", "session_id", payload.Metadata.SessionID, "error", lookupErr)
		}
		return err
	}
	return domainagg.NewErrorWithDetails(domainagg.CodeConflict, "Telemetry.Ingestion.IngestSession",
		"session already ingested: "+payload.Metadata.SessionID,
		map[string]interface{}{domainagg.DetailExistingSessionID: existing.ID.String()}, err)
}

// publishAlerts runs after commit; failures are observability-only.
func (is *ingestionService) publishAlerts(ctx context.Context, res *domainagg.IngestSessionResult) {
	metrics := observability.Current()
	if (is.bus == nil && metrics == nil) || res.AlertsCount == 0 {
		return
	}
	sessionID := res.SessionID
	rows, err := is.alerts.List(ctx, nil, repos.AlertFilter{SessionID: &sessionID, Limit: res.AlertsCount})
	if err != nil {
		is.log.Warn("Alert event fetch failed", "session_id", sessionID, "error", err)
		return
	}
	for _, row := range rows {
		metrics.IncAlertCreated(row.Type, row.Severity)
		if is.bus == nil {
			continue
		}
		ev := redis.AlertEvent{
			AlertID:  row.ID,
			PetID:    row.PetID,
			DeviceID: row.DeviceID,
			Type:     row.Type,
			Severity: row.Severity,
			TS:       row.CreatedAt,
		}
		if err := is.bus.Publish(ctx, ev); err != nil {
			is.log.Warn("Alert event publish failed", "alert_id", row.ID, "error", err)
		}
	}
}

func (is *ingestionService) qualityMeta(payload *ingest.Payload) map[string]any {
	meta := map[string]any{}
	if payload != nil && payload.Metadata != nil {
		if payload.Metadata.DeviceID != "" {
			meta["device"] = payload.Metadata.DeviceID
		}
		if payload.Metadata.SessionID != "" {
			meta["session"] = payload.Metadata.SessionID
		}
	}
	return meta
}

func ingestResultForError(err error) string {
	if domainagg.IsCode(err, domainagg.CodeConflict) {
		return "duplicate"
	}
	if domainagg.IsCode(err, domainagg.CodeValidation) || domainagg.IsCode(err, domainagg.CodeIdentityMismatch) ||
		domainagg.IsCode(err, domainagg.CodeNotFound) {
		return "rejected"
	}
	return "error"
}
