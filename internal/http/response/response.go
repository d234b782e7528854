package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/platform/apierr"
)

type APIError struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is the response shape every JSON endpoint shares. Success wraps
// the payload under data; failure carries the error object instead.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	TS      time.Time `json:"ts"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: payload, TS: time.Now().UTC()})
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: payload, TS: time.Now().UTC()})
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, Envelope{
		Success: false,
		Error:   &APIError{Message: msg, Code: code},
		TS:      time.Now().UTC(),
	})
}

// StatusForCode maps aggregate failure codes onto HTTP statuses.
func StatusForCode(code domainagg.ErrorCode) int {
	switch code {
	case domainagg.CodeValidation:
		return http.StatusBadRequest
	case domainagg.CodeIdentityMismatch:
		return http.StatusForbidden
	case domainagg.CodeNotFound:
		return http.StatusNotFound
	case domainagg.CodeConflict:
		return http.StatusConflict
	case domainagg.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case domainagg.CodeRetryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondFromError renders a service error. An apierr override wins, an
// aggregate error picks its status from the code and keeps its structured
// details, a bare record-not-found reads as 404, and anything else is a 500
// under fallbackCode.
func RespondFromError(c *gin.Context, fallbackCode string, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		RespondError(c, ae.Status, ae.Code, ae.Err)
		return
	}

	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		msg := aggErr.Message
		if msg == "" {
			msg = aggErr.Error()
		}
		c.JSON(StatusForCode(aggErr.Code), Envelope{
			Success: false,
			Error:   &APIError{Message: msg, Code: string(aggErr.Code), Details: aggErr.Details},
			TS:      time.Now().UTC(),
		})
		return
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondError(c, http.StatusInternalServerError, fallbackCode, err)
}
