package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

type AnalysisHandler struct {
	log      *logger.Logger
	queries  services.TelemetryQueryService
	analysis services.AnalysisService
}

func NewAnalysisHandler(log *logger.Logger, queries services.TelemetryQueryService, analysis services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		log:      log.With("handler", "AnalysisHandler"),
		queries:  queries,
		analysis: analysis,
	}
}

// GET /api/analysis?session_id=&device_id=&pet_id=&limit=50&offset=0
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	sessionID, ok := queryUUID(c, "session_id")
	if !ok {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", nil)
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

	analyses, err := h.queries.ListAnalyses(c.Request.Context(), userID, services.AnalysisQuery{
		SessionID: sessionID,
		DeviceID:  deviceID,
		PetID:     petID,
		Limit:     queryLimit(c, 50),
		Offset:    queryOffset(c),
	})
	if err != nil {
		response.RespondFromError(c, "list_analyses_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"analyses": analyses})
}

// GET /api/analysis/latest?pet_id=
func (h *AnalysisHandler) LatestAnalysis(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	petID, ok := queryUUID(c, "pet_id")
	if !ok || petID == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pet_id", nil)
		return
	}

	latest, err := h.queries.LatestAnalysisForPet(c.Request.Context(), userID, *petID)
	if err != nil {
		response.RespondFromError(c, "load_latest_analysis_failed", err)
		return
	}

	// No analysis yet is a normal answer, not a 404.
	if latest == nil {
		response.RespondOK(c, gin.H{"analysis": nil})
		return
	}
	response.RespondOK(c, gin.H{"analysis": latest})
}

// POST /api/analysis/:sessionId
func (h *AnalysisHandler) TriggerAnalysis(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	// The trigger itself runs unscoped, so prove ownership through the read
	// side first.
	if _, err := h.queries.GetSession(c.Request.Context(), userID, sessionID); err != nil {
		response.RespondFromError(c, "load_session_failed", err)
		return
	}

	result, err := h.analysis.ReTrigger(c.Request.Context(), sessionID)
	if err != nil {
		response.RespondFromError(c, "trigger_analysis_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"analysis": result})
}
