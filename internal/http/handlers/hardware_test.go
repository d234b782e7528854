package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type fakeIngestion struct {
	result     *domainagg.IngestSessionResult
	err        error
	gotAuthID  string
	gotPayload *ingest.Payload
}

func (f *fakeIngestion) Ingest(_ context.Context, payload *ingest.Payload, authDeviceExternalID string) (*domainagg.IngestSessionResult, error) {
	f.gotPayload = payload
	f.gotAuthID = authDeviceExternalID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func handlerLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func postSensorData(t *testing.T, h *HardwareHandler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/hardware/sensor-data", h.IngestSensorData)

	req := httptest.NewRequest(http.MethodPost, "/api/hardware/sensor-data", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func minimalUpload(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(gin.H{
		"metadata": gin.H{
			"device_id":  "PET_MONITOR_001",
			"session_id": "sess-001",
			"timestamp":  1724300000,
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestIngestSensorDataCreated(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()
	svc := &fakeIngestion{result: &domainagg.IngestSessionResult{SessionID: sessionID, AlertsCount: 2}}
	h := NewHardwareHandler(handlerLogger(t), svc)

	rec := postSensorData(t, h, minimalUpload(t))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success     bool   `json:"success"`
		SessionID   string `json:"sessionId"`
		AlertsCount int    `json:"alertsCount"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success || body.SessionID != sessionID.String() || body.AlertsCount != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Message == "" {
		t.Fatalf("expected a message")
	}
	if svc.gotPayload == nil || svc.gotPayload.Metadata == nil || svc.gotPayload.Metadata.SessionID != "sess-001" {
		t.Fatalf("payload did not reach the service: %+v", svc.gotPayload)
	}
	if svc.gotAuthID != "" {
		t.Fatalf("anonymous upload must not carry a device identity, got %q", svc.gotAuthID)
	}
}

func TestIngestSensorDataDuplicate(t *testing.T) {
	t.Parallel()

	existing := uuid.New()
	dupErr := domainagg.NewErrorWithDetails(
		domainagg.CodeConflict, "ingest", "session already ingested",
		map[string]interface{}{domainagg.DetailExistingSessionID: existing.String()}, nil,
	)
	h := NewHardwareHandler(handlerLogger(t), &fakeIngestion{err: dupErr})

	rec := postSensorData(t, h, minimalUpload(t))

	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success           bool   `json:"success"`
		ExistingSessionID string `json:"existingSessionId"`
		Error             struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success {
		t.Fatalf("duplicate must not report success")
	}
	if body.ExistingSessionID != existing.String() {
		t.Fatalf("unexpected existingSessionId: %q", body.ExistingSessionID)
	}
	if body.Error.Code != "conflict" {
		t.Fatalf("unexpected error code: %q", body.Error.Code)
	}
}

func TestIngestSensorDataValidationDetails(t *testing.T) {
	t.Parallel()

	valErr := domainagg.NewErrorWithDetails(
		domainagg.CodeValidation, "ingest", "payload failed validation",
		map[string]interface{}{"fields": []ingest.FieldError{{Field: "metadata.device_id", Message: "required"}}}, nil,
	)
	h := NewHardwareHandler(handlerLogger(t), &fakeIngestion{err: valErr})

	rec := postSensorData(t, h, minimalUpload(t))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []struct {
					Field string `json:"field"`
				} `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "validation" {
		t.Fatalf("unexpected error code: %q", body.Error.Code)
	}
	if len(body.Error.Details.Fields) != 1 || body.Error.Details.Fields[0].Field != "metadata.device_id" {
		t.Fatalf("per-field details missing: %s", rec.Body.String())
	}
}

func TestIngestSensorDataUnknownDevice(t *testing.T) {
	t.Parallel()

	h := NewHardwareHandler(handlerLogger(t), &fakeIngestion{
		err: domainagg.NewError(domainagg.CodeNotFound, "ingest", "device not registered", nil),
	})

	rec := postSensorData(t, h, minimalUpload(t))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestIngestSensorDataMalformedJSON(t *testing.T) {
	t.Parallel()

	svc := &fakeIngestion{}
	h := NewHardwareHandler(handlerLogger(t), svc)

	rec := postSensorData(t, h, []byte("{not json"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if svc.gotPayload != nil {
		t.Fatalf("malformed body must not reach the service")
	}
}

func TestIngestSensorDataInternalError(t *testing.T) {
	t.Parallel()

	h := NewHardwareHandler(handlerLogger(t), &fakeIngestion{err: errors.New("db down")})

	rec := postSensorData(t, h, minimalUpload(t))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "ingest_failed" {
		t.Fatalf("unexpected error code: %q", body.Error.Code)
	}
}
