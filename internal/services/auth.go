package services

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// TokenVerifier checks access tokens minted by the identity provider. This
// backend never issues tokens; it only needs the shared HS256 secret and the
// subject claim.
type TokenVerifier interface {
	VerifyAccessToken(tokenString string) (uuid.UUID, error)
}

type tokenVerifier struct {
	log    *logger.Logger
	secret []byte
}

func NewTokenVerifier(baseLog *logger.Logger, jwtSecretKey string) TokenVerifier {
	return &tokenVerifier{
		log:    baseLog.With("service", "TokenVerifier"),
		secret: []byte(jwtSecretKey),
	}
}

func (v *tokenVerifier) VerifyAccessToken(tokenString string) (uuid.UUID, error) {
	if v == nil || len(v.secret) == 0 {
		return uuid.Nil, fmt.Errorf("token verifier not configured")
	}
	if tokenString == "" {
		return uuid.Nil, fmt.Errorf("empty token")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("invalid or expired token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid subject in token")
	}
	return userID, nil
}
