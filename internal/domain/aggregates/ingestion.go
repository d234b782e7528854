package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/ingest"
)

var IngestionAggregateContract = Contract{
	Name:             "Telemetry.IngestionAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns atomic session/child-record/device-liveness/alert consistency for sensor uploads.",
}

// IngestionAggregate owns the sensor upload invariants: a session id is
// persisted at most once, child records and alerts only exist alongside
// their session, and device liveness moves with the upload.
//
// Write method failures should return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeIdentityMismatch, CodeConflict,
// CodeRetryable, CodeInternal.
type IngestionAggregate interface {
	Aggregate

	// IngestSession atomically persists one validated upload: the session,
	// every child record, the device liveness update, and the synthesized
	// alerts. All of it commits or none of it does.
	IngestSession(ctx context.Context, in IngestSessionInput) (IngestSessionResult, error)
}

type IngestSessionInput struct {
	// Payload has already passed schema validation.
	Payload *ingest.Payload
	// AuthDeviceExternalID is set when the caller authenticated with a
	// device key; it must match the payload's device id.
	AuthDeviceExternalID string
	ReceivedAt           time.Time
}

type IngestSessionResult struct {
	SessionID   uuid.UUID
	DeviceID    uuid.UUID
	PetID       *uuid.UUID
	AlertsCount int
	RecordedAt  time.Time
}

// DetailExistingSessionID keys the conflicting session's internal id inside
// a duplicate-session error's Details.
const DetailExistingSessionID = "existing_session_id"
