package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

type UserHandler struct {
	log   *logger.Logger
	users services.UserService
}

func NewUserHandler(log *logger.Logger, users services.UserService) *UserHandler {
	return &UserHandler{
		log:   log.With("handler", "UserHandler"),
		users: users,
	}
}

// GET /api/me
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	me, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.RespondFromError(c, "load_profile_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"me": me})
}

// PATCH /api/me
// body: any subset of { "first_name": "...", "last_name": "...", "locale": "en" }
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Locale    *string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.FirstName == nil && req.LastName == nil && req.Locale == nil {
		response.RespondError(c, http.StatusBadRequest, "no_profile_changes", nil)
		return
	}

	me, err := h.users.UpdateProfile(c.Request.Context(), userID, services.UserProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Locale:    req.Locale,
	})
	if err != nil {
		response.RespondFromError(c, "update_profile_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"me": me})
}

// PATCH /api/me/avatar_color
// body: { "avatar_color": "#RRGGBB" }
func (h *UserHandler) ChangeAvatarColor(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	var req struct {
		AvatarColor string `json:"avatar_color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.AvatarColor = strings.TrimSpace(req.AvatarColor)
	if req.AvatarColor == "" {
		response.RespondError(c, http.StatusBadRequest, "avatar_color_required", nil)
		return
	}

	me, err := h.users.UpdateAvatarColor(c.Request.Context(), userID, req.AvatarColor)
	if err != nil {
		response.RespondFromError(c, "change_avatar_color_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"me": me})
}

// POST /api/me/avatar/upload (multipart/form-data)
// field: "file"
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}

	raw, ok := formImage(c)
	if !ok {
		return
	}

	me, err := h.users.SetAvatarFromImage(c.Request.Context(), userID, raw)
	if err != nil {
		response.RespondFromError(c, "upload_avatar_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"me": me})
}
