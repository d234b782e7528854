package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/platform/ctxutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

// HardwareHandler receives raw collar uploads. The response bodies keep the
// flat camelCase shape the device firmware was built against, so this handler
// does not use the shared envelope on the success path.
type HardwareHandler struct {
	log       *logger.Logger
	ingestion services.IngestionService
}

func NewHardwareHandler(log *logger.Logger, ingestion services.IngestionService) *HardwareHandler {
	return &HardwareHandler{
		log:       log.With("handler", "HardwareHandler"),
		ingestion: ingestion,
	}
}

// POST /api/hardware/sensor-data
func (h *HardwareHandler) IngestSensorData(c *gin.Context) {
	var payload ingest.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}

	var authExternalID string
	if id := ctxutil.GetIdentity(c.Request.Context()); id.IsDevice() {
		authExternalID = id.DeviceExternalID
	}

	res, err := h.ingestion.Ingest(c.Request.Context(), &payload, authExternalID)
	if err != nil {
		if domainagg.IsCode(err, domainagg.CodeConflict) {
			h.respondDuplicate(c, err)
			return
		}
		response.RespondFromError(c, "ingest_failed", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"sessionId":   res.SessionID,
		"alertsCount": res.AlertsCount,
		"message":     "Data received successfully",
		"ts":          time.Now().UTC(),
	})
}

// Duplicate uploads answer with the first upload's session id so firmware can
// tell a retransmit from a genuinely rejected payload.
func (h *HardwareHandler) respondDuplicate(c *gin.Context, err error) {
	body := gin.H{
		"success": false,
		"error": gin.H{
			"message": err.Error(),
			"code":    string(domainagg.CodeConflict),
		},
		"ts": time.Now().UTC(),
	}
	if details := domainagg.DetailsOf(err); details != nil {
		if existing, ok := details[domainagg.DetailExistingSessionID]; ok {
			body["existingSessionId"] = existing
		}
	}
	c.JSON(http.StatusConflict, body)
}
