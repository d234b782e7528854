package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/pawsense/pawsense-backend/internal/platform/httpx"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

func TestAnalyzeRequestShape(t *testing.T) {
	var captured map[string]any
	c := newTestAnalysisClient(t, 0, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/analyze/sensor-data" {
			t.Fatalf("path: want=%q got=%q", "/analyze/sensor-data", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("authorization: got=%q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("content type: got=%q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okAnalyzeResponse(t), nil
	})

	res, err := c.Analyze(context.Background(), AnalyzeRequest{
		Payload:    json.RawMessage(`{"metadata":{"device_id":"PET_MONITOR_001"}}`),
		PetProfile: &PetProfile{Name: "Rex", Breed: "beagle", AgeMonths: 30, WeightKG: 21.4},
		Options:    AnalyzeOptions{ConservativeFill: true, MaxPenalty: 0.2},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	payloadObj, ok := captured["payload_json"].(map[string]any)
	if !ok {
		t.Fatalf("payload_json must be an object, got=%T", captured["payload_json"])
	}
	meta, ok := payloadObj["metadata"].(map[string]any)
	if !ok || meta["device_id"] != "PET_MONITOR_001" {
		t.Fatalf("payload_json content: got=%v", payloadObj)
	}
	if captured["language"] != "en" {
		t.Fatalf("language default: got=%v", captured["language"])
	}
	profile, ok := captured["pet_profile"].(map[string]any)
	if !ok || profile["name"] != "Rex" || profile["breed"] != "beagle" || profile["age"] != float64(30) {
		t.Fatalf("pet_profile: got=%v", captured["pet_profile"])
	}
	opts, ok := captured["options"].(map[string]any)
	if !ok || opts["conservative_fill"] != true || opts["max_penalty"] != 0.2 {
		t.Fatalf("options: got=%v", captured["options"])
	}

	if res.Version != "1.4.0" {
		t.Fatalf("version: got=%q", res.Version)
	}
	if res.Confidence != 0.87 {
		t.Fatalf("confidence: got=%v", res.Confidence)
	}
	if len(res.Insights.Highlights) != 1 || res.Insights.Highlights[0] != "stable vitals" {
		t.Fatalf("insights: %+v", res.Insights)
	}
	if res.Metrics["wellness_index"] != 8.2 {
		t.Fatalf("metrics: %+v", res.Metrics)
	}
}

func TestAnalyzeLanguagePassthrough(t *testing.T) {
	var captured map[string]any
	c := newTestAnalysisClient(t, 0, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okAnalyzeResponse(t), nil
	})

	if _, err := c.Analyze(context.Background(), AnalyzeRequest{Payload: json.RawMessage("{}"), Language: "es"}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if captured["language"] != "es" {
		t.Fatalf("language: got=%v", captured["language"])
	}
}

func TestAnalyzeRejectsEmptyPayload(t *testing.T) {
	called := false
	c := newTestAnalysisClient(t, 0, func(r *http.Request) (*http.Response, error) {
		called = true
		return okAnalyzeResponse(t), nil
	})

	if _, err := c.Analyze(context.Background(), AnalyzeRequest{}); err == nil {
		t.Fatalf("expected error for empty payload_json")
	}
	if called {
		t.Fatalf("no request should be sent for empty payload_json")
	}
}

func TestAnalyzeServiceReportedFailure(t *testing.T) {
	c := newTestAnalysisClient(t, 0, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{"success": false, "version": "1.4.0"}), nil
	})

	if _, err := c.Analyze(context.Background(), AnalyzeRequest{Payload: json.RawMessage("{}")}); err == nil {
		t.Fatalf("expected error when service reports success=false")
	}
}

func TestAnalyzeHTTPErrorCarriesStatus(t *testing.T) {
	c := newTestAnalysisClient(t, 0, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusServiceUnavailable, map[string]any{"error": "overloaded"}), nil
	})

	_, err := c.Analyze(context.Background(), AnalyzeRequest{Payload: json.RawMessage("{}")})
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want *HTTPError got %v", err)
	}
	if he.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status: want=503 got=%d", he.StatusCode)
	}
	if !httpx.IsRetryableError(err) {
		t.Fatalf("503 should classify as retryable")
	}
}

func TestAnalyzeRetriesRetryableStatus(t *testing.T) {
	attempts := 0
	c := newTestAnalysisClient(t, 1, func(r *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return jsonResponse(t, http.StatusServiceUnavailable, map[string]any{"error": "overloaded"}), nil
		}
		return okAnalyzeResponse(t), nil
	})

	if _, err := c.Analyze(context.Background(), AnalyzeRequest{Payload: json.RawMessage("{}")}); err != nil {
		t.Fatalf("Analyze after retry: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts: want=2 got=%d", attempts)
	}
}

func TestAnalyzeDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	c := newTestAnalysisClient(t, 3, func(r *http.Request) (*http.Response, error) {
		attempts++
		return jsonResponse(t, http.StatusBadRequest, map[string]any{"error": "bad payload"}), nil
	})

	if _, err := c.Analyze(context.Background(), AnalyzeRequest{Payload: json.RawMessage("{}")}); err == nil {
		t.Fatalf("expected error for 400")
	}
	if attempts != 1 {
		t.Fatalf("attempts: want=1 got=%d", attempts)
	}
}

func newTestAnalysisClient(t *testing.T, maxRetries int, roundTrip func(*http.Request) (*http.Response, error)) *client {
	t.Helper()
	return &client{
		log:        newTestLogger(t),
		cfg:        Config{BaseURL: "http://analysis.local", Token: "test-token"},
		httpClient: &http.Client{Transport: roundTripFunc(roundTrip)},
		maxRetries: maxRetries,
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okAnalyzeResponse(t *testing.T) *http.Response {
	t.Helper()
	return jsonResponse(t, http.StatusOK, map[string]any{
		"success": true,
		"version": "1.4.0",
		"metrics": map[string]any{"wellness_index": 8.2, "stress_score": 2.1},
		"insights": map[string]any{
			"highlights":      []string{"stable vitals"},
			"watchouts":       []string{},
			"recommendations": []string{"keep current routine"},
		},
		"confidence":  0.87,
		"safety_note": "informational only, not a veterinary diagnosis",
	})
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
