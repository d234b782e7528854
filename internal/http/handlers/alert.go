package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

type AlertHandler struct {
	log    *logger.Logger
	alerts services.AlertService
}

func NewAlertHandler(log *logger.Logger, alerts services.AlertService) *AlertHandler {
	return &AlertHandler{
		log:    log.With("handler", "AlertHandler"),
		alerts: alerts,
	}
}

// GET /api/alerts?device_id=&pet_id=&type=&unread_only=&unresolved_only=&limit=50&offset=0
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	deviceID, ok := queryUUID(c, "device_id")
	if !ok {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", nil)
		return
	}
	petID, ok := queryUUID(c, "pet_id")
	if !ok {
		response.RespondError(c, http.StatusBadRequest, "invalid_pet_id", nil)
		return
	}

	alerts, err := h.alerts.List(c.Request.Context(), userID, services.AlertQuery{
		DeviceID:       deviceID,
		PetID:          petID,
		Type:           strings.TrimSpace(c.Query("type")),
		UnreadOnly:     queryBool(c, "unread_only"),
		UnresolvedOnly: queryBool(c, "unresolved_only"),
		Limit:          queryLimit(c, 50),
		Offset:         queryOffset(c),
	})
	if err != nil {
		response.RespondFromError(c, "list_alerts_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"alerts": alerts})
}

// POST /api/alerts/:id/read
func (h *AlertHandler) MarkRead(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_alert_id", err)
		return
	}

	alert, err := h.alerts.MarkRead(c.Request.Context(), userID, alertID)
	if err != nil {
		response.RespondFromError(c, "mark_alert_read_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"alert": alert})
}

// POST /api/alerts/:id/resolve
func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_alert_id", err)
		return
	}

	alert, err := h.alerts.Resolve(c.Request.Context(), userID, alertID)
	if err != nil {
		response.RespondFromError(c, "resolve_alert_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"alert": alert})
}
