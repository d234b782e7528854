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

type DeviceHandler struct {
	log     *logger.Logger
	devices services.DeviceService
}

func NewDeviceHandler(log *logger.Logger, devices services.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		log:     log.With("handler", "DeviceHandler"),
		devices: devices,
	}
}

// POST /api/devices
// body: { "external_id": "PET_MONITOR_001", "name": "...", "type": "...", "model": "...", "firmware_version": "...", "hardware_version": "..." }
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	var req struct {
		ExternalID      string `json:"external_id"`
		Name            string `json:"name"`
		Type            string `json:"type"`
		Model           string `json:"model"`
		FirmwareVersion string `json:"firmware_version"`
		HardwareVersion string `json:"hardware_version"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	provisioned, err := h.devices.Register(c.Request.Context(), userID, services.DeviceRegistration{
		ExternalID:      strings.TrimSpace(req.ExternalID),
		Name:            strings.TrimSpace(req.Name),
		Type:            strings.TrimSpace(req.Type),
		Model:           strings.TrimSpace(req.Model),
		FirmwareVersion: strings.TrimSpace(req.FirmwareVersion),
		HardwareVersion: strings.TrimSpace(req.HardwareVersion),
	})
	if err != nil {
		response.RespondFromError(c, "register_device_failed", err)
		return
	}

	// The plaintext enrollment key appears in this response and nowhere else.
	response.RespondCreated(c, gin.H{
		"device":         provisioned.Device,
		"enrollment_key": provisioned.EnrollmentKey,
	})
}

// GET /api/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	devices, err := h.devices.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondFromError(c, "list_devices_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"devices": devices})
}

// GET /api/devices/:id
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", err)
		return
	}

	device, err := h.devices.Get(c.Request.Context(), userID, deviceID)
	if err != nil {
		response.RespondFromError(c, "load_device_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"device": device})
}

// PATCH /api/devices/:id/status
// body: { "status": "active" | "inactive" | "maintenance" | "retired" }
func (h *DeviceHandler) UpdateDeviceStatus(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	device, err := h.devices.UpdateStatus(c.Request.Context(), userID, deviceID, strings.TrimSpace(req.Status))
	if err != nil {
		response.RespondFromError(c, "update_device_status_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"device": device})
}

// POST /api/devices/:id/bind
// body: { "pet_id": "..." }
func (h *DeviceHandler) BindDevice(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", err)
		return
	}

	var req struct {
		PetID string `json:"pet_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	petID, err := uuid.Parse(strings.TrimSpace(req.PetID))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pet_id", err)
		return
	}

	binding, err := h.devices.Bind(c.Request.Context(), userID, petID, deviceID)
	if err != nil {
		response.RespondFromError(c, "bind_device_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"binding": binding})
}

// POST /api/devices/:id/unbind
func (h *DeviceHandler) UnbindDevice(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", err)
		return
	}

	if err := h.devices.Unbind(c.Request.Context(), userID, deviceID); err != nil {
		response.RespondFromError(c, "unbind_device_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"ok": true})
}
