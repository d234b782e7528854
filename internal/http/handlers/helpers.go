package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/platform/ctxutil"
)

// maxAvatarUploadBytes caps avatar uploads at 10MB before decoding.
const maxAvatarUploadBytes = 10 << 20

// requestUserID pulls the authenticated owner out of the request context.
// Handlers behind RequireUser always find one; the guard covers misrouting.
func requestUserID(c *gin.Context) (uuid.UUID, bool) {
	id := ctxutil.GetIdentity(c.Request.Context())
	if !id.IsUser() {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, false
	}
	return id.UserID, true
}

func queryLimit(c *gin.Context, def int) int {
	limit := def
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return limit
}

func queryOffset(c *gin.Context) int {
	offset := 0
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return offset
}

// queryUUID parses an optional uuid query parameter. ok is false only when a
// value is present and malformed.
func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil || id == uuid.Nil {
		return nil, false
	}
	return &id, true
}

func queryBool(c *gin.Context, name string) bool {
	v := strings.ToLower(strings.TrimSpace(c.Query(name)))
	return v == "true" || v == "1"
}

// formImage reads the multipart "file" field, enforcing the size cap. On
// failure it has already written the error response.
func formImage(c *gin.Context) ([]byte, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "open_file_failed", err)
		return nil, false
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxAvatarUploadBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "read_file_failed", err)
		return nil, false
	}
	if len(raw) > maxAvatarUploadBytes {
		response.RespondError(c, http.StatusBadRequest, "file_too_large", nil)
		return nil, false
	}
	return raw, true
}
