package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/platform/apierr"
)

type decodedEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *struct {
		Message string         `json:"message"`
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	TS string `json:"ts"`
}

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, decodedEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", handler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	var env decodedEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, rec.Body.String())
	}
	return rec, env
}

func TestRespondOKWrapsData(t *testing.T) {
	t.Parallel()

	rec, env := serve(t, func(c *gin.Context) {
		RespondOK(c, gin.H{"name": "Biscuit"})
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	if !env.Success {
		t.Fatalf("success should be true")
	}
	if env.Error != nil {
		t.Fatalf("error should be absent, got %+v", env.Error)
	}
	if env.Data["name"] != "Biscuit" {
		t.Fatalf("unexpected data: %+v", env.Data)
	}
	if env.TS == "" {
		t.Fatalf("ts should be set")
	}
}

func TestRespondErrorShape(t *testing.T) {
	t.Parallel()

	rec, env := serve(t, func(c *gin.Context) {
		RespondError(c, http.StatusBadRequest, "invalid_pet_id", errors.New("bad uuid"))
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
	if env.Success {
		t.Fatalf("success should be false")
	}
	if env.Error == nil || env.Error.Code != "invalid_pet_id" || env.Error.Message != "bad uuid" {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
}

func TestRespondFromErrorMapsAggregateCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code   domainagg.ErrorCode
		status int
	}{
		{domainagg.CodeValidation, http.StatusBadRequest},
		{domainagg.CodeIdentityMismatch, http.StatusForbidden},
		{domainagg.CodeNotFound, http.StatusNotFound},
		{domainagg.CodeConflict, http.StatusConflict},
		{domainagg.CodePreconditionFailed, http.StatusPreconditionFailed},
		{domainagg.CodeRetryable, http.StatusServiceUnavailable},
		{domainagg.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.code), func(t *testing.T) {
			t.Parallel()
			rec, env := serve(t, func(c *gin.Context) {
				RespondFromError(c, "fallback", domainagg.NewError(tc.code, "Op", "boom", nil))
			})
			if rec.Code != tc.status {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, tc.status)
			}
			if env.Error == nil || env.Error.Code != string(tc.code) {
				t.Fatalf("unexpected error: %+v", env.Error)
			}
			if env.Error.Message != "boom" {
				t.Fatalf("unexpected message: %q", env.Error.Message)
			}
		})
	}
}

func TestRespondFromErrorKeepsValidationDetails(t *testing.T) {
	t.Parallel()

	err := domainagg.NewErrorWithDetails(domainagg.CodeValidation, "Op", "payload validation failed",
		map[string]interface{}{"fields": []map[string]string{{"field": "metadata.device_id", "message": "is required"}}}, nil)

	rec, env := serve(t, func(c *gin.Context) {
		RespondFromError(c, "fallback", err)
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if env.Error == nil || env.Error.Details == nil {
		t.Fatalf("details should survive the envelope, got %+v", env.Error)
	}
	if _, ok := env.Error.Details["fields"]; !ok {
		t.Fatalf("field details missing: %+v", env.Error.Details)
	}
}

func TestRespondFromErrorApierrOverrideWins(t *testing.T) {
	t.Parallel()

	rec, env := serve(t, func(c *gin.Context) {
		RespondFromError(c, "fallback", apierr.New(http.StatusTooManyRequests, "rate_limited", errors.New("slow down")))
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "rate_limited" {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
}

func TestRespondFromErrorBareRecordNotFound(t *testing.T) {
	t.Parallel()

	rec, env := serve(t, func(c *gin.Context) {
		RespondFromError(c, "fallback", fmt.Errorf("pet abc: %w", gorm.ErrRecordNotFound))
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "not_found" {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
}

func TestRespondFromErrorFallsBackToInternal(t *testing.T) {
	t.Parallel()

	rec, env := serve(t, func(c *gin.Context) {
		RespondFromError(c, "load_failed", errors.New("disk on fire"))
	})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "load_failed" {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
}
