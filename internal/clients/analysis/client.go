// Package analysis wraps the external analysis service that turns a
// persisted session into derived metrics and insights.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pawsense/pawsense-backend/internal/platform/ctxutil"
	"github.com/pawsense/pawsense-backend/internal/platform/envutil"
	"github.com/pawsense/pawsense-backend/internal/platform/httpx"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type Client interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
}

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.GetEnvAsInt("ANALYSIS_TIMEOUT_SECONDS", 120, nil)
	maxRetries := envutil.GetEnvAsInt("ANALYSIS_RETRY_MAX", 0, nil)

	return Config{
		BaseURL:    strings.TrimSpace(os.Getenv("ANALYSIS_SERVICE_URL")),
		Token:      strings.TrimSpace(os.Getenv("ANALYSIS_SERVICE_TOKEN")),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: maxRetries,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing ANALYSIS_SERVICE_URL")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &client{
		log:        log.With("client", "AnalysisClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	maxRetries int
}

// --- public request/response types ---

// PetProfile is the optional context block sent alongside the payload so the
// service can calibrate metrics to the animal wearing the device. Age is in
// months, weight in kilograms.
type PetProfile struct {
	ID               string   `json:"id,omitempty"`
	Name             string   `json:"name,omitempty"`
	Breed            string   `json:"breed,omitempty"`
	AgeMonths        int      `json:"age,omitempty"`
	WeightKG         float64  `json:"weight,omitempty"`
	Gender           string   `json:"gender,omitempty"`
	Neutered         *bool    `json:"neutered,omitempty"`
	HealthConditions []string `json:"health_conditions,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
}

type AnalyzeOptions struct {
	ConservativeFill bool    `json:"conservative_fill"`
	MaxPenalty       float64 `json:"max_penalty"`
}

// AnalyzeRequest carries the canonical payload as a raw JSON object; the
// service parses it on its side.
type AnalyzeRequest struct {
	Payload    json.RawMessage
	PetProfile *PetProfile
	Language   string
	Options    AnalyzeOptions
}

type Insights struct {
	Highlights      []string `json:"highlights"`
	Watchouts       []string `json:"watchouts"`
	Recommendations []string `json:"recommendations"`
}

type AnalyzeResult struct {
	Success     bool                   `json:"success"`
	Version     string                 `json:"version"`
	Metrics     map[string]interface{} `json:"metrics"`
	MetricsMeta map[string]interface{} `json:"metricsMeta,omitempty"`
	Insights    Insights               `json:"insights"`
	Confidence  float64                `json:"confidence"`
	SafetyNote  string                 `json:"safety_note,omitempty"`
}

// --- wire types ---

type analyzeWireRequest struct {
	PayloadJSON json.RawMessage `json:"payload_json"`
	PetProfile  *PetProfile     `json:"pet_profile,omitempty"`
	Language    string          `json:"language"`
	Options     AnalyzeOptions  `json:"options"`
}

func (c *client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if len(req.Payload) == 0 {
		return nil, fmt.Errorf("analysis: payload required")
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "en"
	}

	wire := analyzeWireRequest{
		PayloadJSON: req.Payload,
		PetProfile:  req.PetProfile,
		Language:    lang,
		Options:     req.Options,
	}

	_, raw, err := c.do(ctx, http.MethodPost, "/analyze/sensor-data", wire)
	if err != nil {
		return nil, err
	}

	var result AnalyzeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("analysis: decode response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("analysis: service reported failure (version=%s)", result.Version)
	}
	return &result, nil
}

// ---------- HTTP / retry helpers ----------

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "analysis: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("analysis http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) do(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			return resp, raw, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Analysis request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, nil, errors.New("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return resp, raw, nil
}
