package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

type SessionHandler struct {
	log     *logger.Logger
	queries services.TelemetryQueryService
}

func NewSessionHandler(log *logger.Logger, queries services.TelemetryQueryService) *SessionHandler {
	return &SessionHandler{
		log:     log.With("handler", "SessionHandler"),
		queries: queries,
	}
}

// GET /api/sensor-sessions?device_id=&pet_id=&limit=50&offset=0
func (h *SessionHandler) ListSessions(c *gin.Context) {
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

	sessions, err := h.queries.ListSessions(c.Request.Context(), userID, services.SessionQuery{
		DeviceID: deviceID,
		PetID:    petID,
		Limit:    queryLimit(c, 50),
		Offset:   queryOffset(c),
	})
	if err != nil {
		response.RespondFromError(c, "list_sessions_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/sensor-sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	session, err := h.queries.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		response.RespondFromError(c, "load_session_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"session": session})
}
