package observability

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/platform/ctxutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// Array indices would explode label cardinality, so sample positions collapse
// to [] before a field becomes a metric label.
var fieldIndexRe = regexp.MustCompile(`\[\d+\]`)

var dqThrottle alertThrottle

// ReportIngestQuality classifies the field violations of a rejected upload
// into quality counters and fans a deduped alert to the ops webhook. It never
// blocks or fails the rejection response.
func ReportIngestQuality(ctx context.Context, log *logger.Logger, stage string, fields []ingest.FieldError, meta map[string]any) {
	if len(fields) == 0 {
		return
	}
	stage = valueOr(stage, "unknown")
	if meta == nil {
		meta = map[string]any{}
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			meta["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			meta["request_id"] = td.RequestID
		}
	}

	metrics := Current()
	issueCounts := map[string]int{}
	sampleErrors := make([]string, 0, 3)
	for _, fe := range fields {
		field := strings.TrimSpace(fe.Field)
		message := strings.TrimSpace(fe.Message)
		if field == "" && message == "" {
			continue
		}
		if len(sampleErrors) < 3 {
			sampleErrors = append(sampleErrors, field+": "+message)
		}
		issue := classifyFieldIssue(message)
		issueCounts[issue]++
		metrics.IncIngestQualityIssue(stage, issue, fieldIndexRe.ReplaceAllString(field, "[]"))
	}
	if len(issueCounts) == 0 {
		return
	}

	if log != nil {
		log.Warn("ingest quality issue detected",
			"stage", stage,
			"issues", issueCounts,
			"sample_errors", sampleErrors,
			"meta", meta,
		)
	}

	if !envBool("DATA_QUALITY_ALERTS_ENABLED") {
		return
	}
	webhook := envStr("DATA_QUALITY_ALERT_WEBHOOK_URL")
	if webhook == "" {
		webhook = envStr("SLO_ALERT_WEBHOOK_URL")
	}
	if webhook == "" {
		return
	}
	if !dqThrottle.allow(stage, envSeconds("DATA_QUALITY_ALERT_MIN_INTERVAL_SECONDS", 300)) {
		return
	}
	postWebhook(log, webhook, map[string]any{
		"title":         "Ingest data quality issue",
		"stage":         stage,
		"issues":        issueCounts,
		"sample_errors": sampleErrors,
		"meta":          meta,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}, "stage", stage)
}

// classifyFieldIssue buckets a validator message by the phrasing the upload
// validator uses, so dashboards can split firmware bugs (missing blocks, bad
// enums) from sensor drift (range violations).
func classifyFieldIssue(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "is required"):
		return "missing_required"
	case strings.Contains(lower, "must be one of"):
		return "invalid_enum"
	case strings.Contains(lower, "must be between"),
		strings.Contains(lower, "must not be negative"),
		strings.Contains(lower, "must be a positive"),
		strings.Contains(lower, "must be an integer"):
		return "out_of_range"
	default:
		return "validation_error"
	}
}
