package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/data/repos"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
)

// --- fake extensions shared with the dispatcher tests ---

func (f *fakePetRepo) ListByOwner(_ context.Context, _ *gorm.DB, ownerID uuid.UUID) ([]*registry.Pet, error) {
	out := []*registry.Pet{}
	for _, pet := range f.pets {
		if pet.OwnerID == ownerID {
			out = append(out, pet)
		}
	}
	return out, nil
}

func (f *fakeBindingRepo) ListActiveByPetIDs(_ context.Context, _ *gorm.DB, petIDs []uuid.UUID) ([]*registry.PetDeviceBinding, error) {
	want := map[uuid.UUID]struct{}{}
	for _, id := range petIDs {
		want[id] = struct{}{}
	}
	out := []*registry.PetDeviceBinding{}
	for _, binding := range f.active {
		if _, ok := want[binding.PetID]; ok && binding.IsActive {
			out = append(out, binding)
		}
	}
	return out, nil
}

type fakeSessionRepo struct {
	repos.SessionRepo
	byID       map[uuid.UUID]*telemetry.SensorDataSession
	lastFilter repos.SessionFilter
}

func (f *fakeSessionRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*telemetry.SensorDataSession, error) {
	session, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (f *fakeSessionRepo) GetBySessionID(_ context.Context, _ *gorm.DB, sessionID string) (*telemetry.SensorDataSession, error) {
	for _, session := range f.byID {
		if session.SessionID == sessionID {
			return session, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSessionRepo) List(_ context.Context, _ *gorm.DB, filter repos.SessionFilter) ([]*telemetry.SensorDataSession, error) {
	f.lastFilter = filter
	allowed := map[uuid.UUID]struct{}{}
	for _, id := range filter.DeviceIDs {
		allowed[id] = struct{}{}
	}
	out := []*telemetry.SensorDataSession{}
	for _, session := range f.byID {
		if _, ok := allowed[session.DeviceID]; ok {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

func analysisMatches(record *telemetry.SensorAnalysis, filter repos.AnalysisFilter) bool {
	for _, id := range filter.DeviceIDs {
		if record.DeviceID == id {
			return true
		}
	}
	if record.PetID != nil {
		for _, id := range filter.PetIDs {
			if *record.PetID == id {
				return true
			}
		}
	}
	return false
}

func (f *fakeAnalysisRepo) List(_ context.Context, _ *gorm.DB, filter repos.AnalysisFilter) ([]*telemetry.SensorAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	out := []*telemetry.SensorAnalysis{}
	for _, record := range f.bySession {
		if analysisMatches(record, filter) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalyzedAt.After(out[j].AnalyzedAt) })
	return out, nil
}

func (f *fakeAnalysisRepo) Latest(_ context.Context, _ *gorm.DB, filter repos.AnalysisFilter) (*telemetry.SensorAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *telemetry.SensorAnalysis
	for _, record := range f.bySession {
		if !analysisMatches(record, filter) {
			continue
		}
		if latest == nil || record.AnalyzedAt.After(latest.AnalyzedAt) {
			latest = record
		}
	}
	return latest, nil
}

// --- fixture ---

// queryFixture seeds two households: the owner with pet/device/session and
// a neighbor with their own chain, to prove the scope wall between them.
type queryFixture struct {
	svc      TelemetryQueryService
	pets     *fakePetRepo
	bindings *fakeBindingRepo
	sessions *fakeSessionRepo
	analyses *fakeAnalysisRepo

	ownerID    uuid.UUID
	petID      uuid.UUID
	deviceID   uuid.UUID
	sessionID  uuid.UUID
	analysisID uuid.UUID

	neighborID        uuid.UUID
	neighborSessionID uuid.UUID
	neighborDeviceID  uuid.UUID
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()

	fx := &queryFixture{
		ownerID:           uuid.New(),
		petID:             uuid.New(),
		deviceID:          uuid.New(),
		sessionID:         uuid.New(),
		analysisID:        uuid.New(),
		neighborID:        uuid.New(),
		neighborSessionID: uuid.New(),
		neighborDeviceID:  uuid.New(),
	}
	neighborPetID := uuid.New()

	fx.pets = &fakePetRepo{pets: map[uuid.UUID]*registry.Pet{
		fx.petID:      {ID: fx.petID, OwnerID: fx.ownerID, Name: "Biscuit"},
		neighborPetID: {ID: neighborPetID, OwnerID: fx.neighborID, Name: "Rex"},
	}}
	fx.bindings = &fakeBindingRepo{active: map[uuid.UUID]*registry.PetDeviceBinding{
		fx.deviceID:         {ID: uuid.New(), PetID: fx.petID, DeviceID: fx.deviceID, IsActive: true},
		fx.neighborDeviceID: {ID: uuid.New(), PetID: neighborPetID, DeviceID: fx.neighborDeviceID, IsActive: true},
	}}

	now := time.Now().UTC()
	fx.sessions = &fakeSessionRepo{byID: map[uuid.UUID]*telemetry.SensorDataSession{
		fx.sessionID: {
			ID:         fx.sessionID,
			DeviceID:   fx.deviceID,
			SessionID:  "sess_owner_1",
			RecordedAt: now.Add(-time.Hour),
		},
		fx.neighborSessionID: {
			ID:         fx.neighborSessionID,
			DeviceID:   fx.neighborDeviceID,
			SessionID:  "sess_neighbor_1",
			RecordedAt: now.Add(-2 * time.Hour),
		},
	}}
	records := &fakeRecordRepo{aggregates: map[uuid.UUID]*telemetry.SessionAggregate{
		fx.sessionID: {Session: fx.sessions.byID[fx.sessionID]},
	}}

	fx.analyses = newFakeAnalysisRepo()
	petID := fx.petID
	fx.analyses.bySession[fx.sessionID] = &telemetry.SensorAnalysis{
		ID:         fx.analysisID,
		SessionID:  fx.sessionID,
		DeviceID:   fx.deviceID,
		PetID:      &petID,
		AnalyzedAt: now.Add(-30 * time.Minute),
	}
	fx.analyses.bySession[fx.neighborSessionID] = &telemetry.SensorAnalysis{
		ID:         uuid.New(),
		SessionID:  fx.neighborSessionID,
		DeviceID:   fx.neighborDeviceID,
		PetID:      &neighborPetID,
		AnalyzedAt: now.Add(-90 * time.Minute),
	}

	fx.svc = NewTelemetryQueryService(newTestLogger(t), fx.pets, fx.bindings, fx.sessions, records, fx.analyses)
	return fx
}

// --- tests ---

func TestListSessionsScopedToOwner(t *testing.T) {
	fx := newQueryFixture(t)
	ctx := context.Background()

	sessions, err := fx.svc.ListSessions(ctx, fx.ownerID, SessionQuery{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != fx.sessionID {
		t.Fatalf("owner sessions: want=[%s] got=%v", fx.sessionID, sessions)
	}
	if fx.sessions.lastFilter.Limit != defaultPageSize {
		t.Fatalf("default limit: want=%d got=%d", defaultPageSize, fx.sessions.lastFilter.Limit)
	}

	sessions, err = fx.svc.ListSessions(ctx, uuid.New(), SessionQuery{})
	if err != nil {
		t.Fatalf("ListSessions stranger: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("stranger sessions: want=0 got=%d", len(sessions))
	}
}

func TestListSessionsDeviceFilter(t *testing.T) {
	fx := newQueryFixture(t)
	ctx := context.Background()

	sessions, err := fx.svc.ListSessions(ctx, fx.ownerID, SessionQuery{DeviceID: &fx.deviceID})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != fx.sessionID {
		t.Fatalf("device filter: got=%v", sessions)
	}

	// A device the user cannot reach yields nothing, not an error.
	sessions, err = fx.svc.ListSessions(ctx, fx.ownerID, SessionQuery{DeviceID: &fx.neighborDeviceID})
	if err != nil {
		t.Fatalf("ListSessions foreign device: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("foreign device filter: want=0 got=%d", len(sessions))
	}
}

func TestListSessionsPetFilter(t *testing.T) {
	fx := newQueryFixture(t)
	ctx := context.Background()

	sessions, err := fx.svc.ListSessions(ctx, fx.ownerID, SessionQuery{PetID: &fx.petID})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != fx.sessionID {
		t.Fatalf("pet filter: got=%v", sessions)
	}

	foreign := uuid.New()
	sessions, err = fx.svc.ListSessions(ctx, fx.ownerID, SessionQuery{PetID: &foreign})
	if err != nil {
		t.Fatalf("ListSessions foreign pet: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("foreign pet filter: want=0 got=%d", len(sessions))
	}
}

func TestGetSessionMasksForeignSessions(t *testing.T) {
	fx := newQueryFixture(t)
	ctx := context.Background()

	agg, err := fx.svc.GetSession(ctx, fx.ownerID, fx.sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if agg.Session.ID != fx.sessionID {
		t.Fatalf("aggregate session: want=%s got=%s", fx.sessionID, agg.Session.ID)
	}

	if _, err := fx.svc.GetSession(ctx, fx.ownerID, fx.neighborSessionID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign session: want record-not-found, got %v", err)
	}
	if _, err := fx.svc.GetSession(ctx, fx.ownerID, uuid.New()); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("unknown session: want record-not-found, got %v", err)
	}
}

func TestListAnalysesScoping(t *testing.T) {
	fx := newQueryFixture(t)
	ctx := context.Background()

	records, err := fx.svc.ListAnalyses(ctx, fx.ownerID, AnalysisQuery{})
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(records) != 1 || records[0].ID != fx.analysisID {
		t.Fatalf("owner analyses: got=%v", records)
	}

	records, err = fx.svc.ListAnalyses(ctx, fx.ownerID, AnalysisQuery{SessionID: &fx.sessionID})
	if err != nil {
		t.Fatalf("ListAnalyses by session: %v", err)
	}
	if len(records) != 1 || records[0].ID != fx.analysisID {
		t.Fatalf("session filter: got=%v", records)
	}

	// The neighbor's session resolves to a record out of scope.
	records, err = fx.svc.ListAnalyses(ctx, fx.ownerID, AnalysisQuery{SessionID: &fx.neighborSessionID})
	if err != nil {
		t.Fatalf("ListAnalyses foreign session: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("foreign session filter: want=0 got=%d", len(records))
	}

	records, err = fx.svc.ListAnalyses(ctx, fx.ownerID, AnalysisQuery{DeviceID: &fx.deviceID})
	if err != nil {
		t.Fatalf("ListAnalyses by device: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("device filter: want=1 got=%d", len(records))
	}

	records, err = fx.svc.ListAnalyses(ctx, fx.ownerID, AnalysisQuery{PetID: &fx.petID})
	if err != nil {
		t.Fatalf("ListAnalyses by pet: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("pet filter: want=1 got=%d", len(records))
	}
}

func TestLatestAnalysisForPet(t *testing.T) {
	fx := newQueryFixture(t)
	ctx := context.Background()

	record, err := fx.svc.LatestAnalysisForPet(ctx, fx.ownerID, fx.petID)
	if err != nil {
		t.Fatalf("LatestAnalysisForPet: %v", err)
	}
	if record == nil || record.ID != fx.analysisID {
		t.Fatalf("latest: want=%s got=%v", fx.analysisID, record)
	}

	// Still resolvable through the pet id after the binding ends.
	delete(fx.bindings.active, fx.deviceID)
	record, err = fx.svc.LatestAnalysisForPet(ctx, fx.ownerID, fx.petID)
	if err != nil {
		t.Fatalf("LatestAnalysisForPet unbound: %v", err)
	}
	if record == nil || record.ID != fx.analysisID {
		t.Fatalf("latest after unbind: got=%v", record)
	}

	// A pet outside the scope resolves to nothing rather than an error.
	foreign := uuid.New()
	record, err = fx.svc.LatestAnalysisForPet(ctx, fx.ownerID, foreign)
	if err != nil {
		t.Fatalf("LatestAnalysisForPet foreign: %v", err)
	}
	if record != nil {
		t.Fatalf("foreign pet latest: want=nil got=%v", record)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: 0, want: defaultPageSize},
		{in: -3, want: defaultPageSize},
		{in: 25, want: 25},
		{in: maxPageSize, want: maxPageSize},
		{in: maxPageSize + 1, want: maxPageSize},
	}
	for _, tc := range cases {
		if got := clampLimit(tc.in); got != tc.want {
			t.Fatalf("clampLimit(%d): want=%d got=%d", tc.in, tc.want, got)
		}
	}
}
