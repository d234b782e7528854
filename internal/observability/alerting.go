package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

var webhookClient = &http.Client{Timeout: 5 * time.Second}

// postWebhook delivers one JSON alert to an ops webhook. Delivery is best
// effort; failures log and drop so alerting never blocks the caller. fields
// are extra key-value pairs for the log lines.
func postWebhook(log *logger.Logger, url string, payload map[string]any, fields ...any) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		if log != nil {
			log.Warn("alert webhook request build failed", append([]any{"error", err}, fields...)...)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := webhookClient.Do(req)
	if err != nil {
		if log != nil {
			log.Warn("alert webhook post failed", append([]any{"error", err}, fields...)...)
		}
		return
	}
	_ = resp.Body.Close()
	if log != nil {
		log.Info("alert webhook sent", append([]any{"status", resp.StatusCode}, fields...)...)
	}
}

// alertThrottle suppresses repeat alerts per key until the interval passes.
// The zero value is ready to use.
type alertThrottle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (t *alertThrottle) allow(key string, every time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		t.last = map[string]time.Time{}
	}
	if prev, ok := t.last[key]; ok && time.Since(prev) < every {
		return false
	}
	t.last[key] = time.Now()
	return true
}

func envStr(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string) bool {
	switch strings.ToLower(envStr(key)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envFloat(key string, def float64) float64 {
	raw := envStr(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envSeconds(key string, def float64) time.Duration {
	v := envFloat(key, def)
	if v <= 0 {
		v = def
	}
	return time.Duration(v * float64(time.Second))
}
