package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pawsense/pawsense-backend/internal/http/response"
	"github.com/pawsense/pawsense-backend/internal/platform/ctxutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
	"github.com/pawsense/pawsense-backend/internal/services"
)

const (
	headerDeviceID  = "X-Device-Id"
	headerDeviceKey = "X-Device-Key"
)

type AuthMiddleware struct {
	log            *logger.Logger
	verifier       services.TokenVerifier
	devices        services.DeviceService
	allowAnonymous bool
}

func NewAuthMiddleware(log *logger.Logger, verifier services.TokenVerifier, devices services.DeviceService, allowAnonymousIngest bool) *AuthMiddleware {
	return &AuthMiddleware{
		log:            log.With("middleware", "AuthMiddleware"),
		verifier:       verifier,
		devices:        devices,
		allowAnonymous: allowAnonymousIngest,
	}
}

// RequireUser guards the owner-facing API. The identity provider mints the
// tokens; this only checks the signature and injects the subject.
func (am *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			am.abort(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		userID, err := am.verifier.VerifyAccessToken(token)
		if err != nil {
			am.abort(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}

		ctx := ctxutil.WithIdentity(c.Request.Context(), &ctxutil.Identity{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// DeviceAuth guards the upload path. Device credentials win when present; a
// bearer token authenticates the upload as a user; with neither, the request
// passes only in anonymous mode. A partially or wrongly credentialed device
// is rejected rather than downgraded to anonymous.
func (am *AuthMiddleware) DeviceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := strings.TrimSpace(c.GetHeader(headerDeviceID))
		key := strings.TrimSpace(c.GetHeader(headerDeviceKey))

		if externalID != "" || key != "" {
			if externalID == "" || key == "" {
				am.abort(c, http.StatusUnauthorized, "unauthorized", "incomplete device credentials")
				return
			}
			device, err := am.devices.VerifyKey(c.Request.Context(), externalID, key)
			if err != nil {
				am.log.Warn("Device authentication failed", "device", externalID, "error", err)
				am.abort(c, http.StatusUnauthorized, "unauthorized", "invalid device credentials")
				return
			}
			ctx := ctxutil.WithIdentity(c.Request.Context(), &ctxutil.Identity{
				DeviceID:         device.ID,
				DeviceExternalID: device.ExternalID,
			})
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		if token := bearerToken(c); token != "" {
			userID, err := am.verifier.VerifyAccessToken(token)
			if err != nil {
				am.abort(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
				return
			}
			ctx := ctxutil.WithIdentity(c.Request.Context(), &ctxutil.Identity{UserID: userID})
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		if !am.allowAnonymous {
			am.abort(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

func (am *AuthMiddleware) abort(c *gin.Context, status int, code, message string) {
	response.RespondError(c, status, code, errors.New(message))
	c.Abort()
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
