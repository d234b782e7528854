package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Logger wraps zap's sugared logger with key-based scrubbing so pet-owner
// PII and device credentials stay out of log sinks. Scrubbing applies to
// structured fields only, so messages must never interpolate user data.
type Logger struct {
	sugar *zap.SugaredLogger
}

func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar()}, nil
}

func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, scrub(kv)...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.sugar.Fatalw(msg, scrub(kv)...) }

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sugar: l.sugar.With(scrub(kv)...)}
}

// Field keys that never reach a sink in the clear. Matching is by substring
// on the lowered key, so "device_enrollment_key" and "refresh_token" both
// hit.
var secretKeyParts = []string{
	"token", "authorization", "password", "secret", "cookie",
	"api_key", "apikey", "device_key", "enrollment_key", "email",
}

// Owner identifiers are hashed instead of dropped so lines about the same
// account still correlate.
var hashedKeyParts = []string{"user_id", "owner_id"}

func scrub(kv []any) []any {
	if len(kv) == 0 || !scrubOn() {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := asString(kv[i])
		out = append(out, key, scrubValue(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

// scrubValue redacts by key, then by shape: nested maps and slices recurse,
// and anything that looks like a JWT is dropped regardless of its key.
func scrubValue(key string, val any) any {
	if matchAny(key, secretKeyParts) {
		return "[REDACTED]"
	}
	if matchAny(key, hashedKeyParts) {
		return saltedHash(asString(val))
	}
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = scrubValue(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = scrubValue("", inner)
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return "[REDACTED]"
		}
	}
	return val
}

func matchAny(key string, parts []string) bool {
	if key == "" {
		return false
	}
	for _, p := range parts {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// saltedHash keeps an identifier correlatable without exposing it. The
// digest is truncated to 12 hex chars; the salt comes from LOG_HASH_SALT.
func saltedHash(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(scrubSalt() + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

var (
	scrubOnce sync.Once
	scrubOff  bool
	scrubKey  string
)

// Redaction defaults on; LOG_REDACTION_ENABLED=0 turns it off for local
// debugging.
func loadScrubEnv() {
	scrubOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			scrubOff = true
		}
		scrubKey = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
}

func scrubOn() bool {
	loadScrubEnv()
	return !scrubOff
}

func scrubSalt() string {
	loadScrubEnv()
	return scrubKey
}
