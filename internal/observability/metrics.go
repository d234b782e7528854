package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	domainregistry "github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// Metrics is the process-wide registry of counters the platform reports:
// API traffic, upload outcomes, analysis runs, aggregate write accounting,
// and the gauges the SLO evaluator publishes. A nil *Metrics is a valid
// no-op receiver so call sites never branch on METRICS_ENABLED.
type Metrics struct {
	reg *registry

	apiRequests *family
	apiLatency  *family
	apiInflight *family
	apiReqTotal *family
	apiReqError *family
	apiReqGood  *family

	ingestSessions *family
	ingestLatency  *family
	ingestTotal    *family
	ingestError    *family
	ingestQuality  *family

	alertsCreated *family

	analysisRuns       *family
	analysisLatency    *family
	analysisQueueDepth *family
	analysisDropped    *family
	analysisTotal      *family
	analysisError      *family

	aggregateOps       *family
	aggregateOpsCt     *family
	aggregateConflicts *family
	aggregateRetries   *family

	devicesOffline *family
	deviceStatus   *family

	pgStats   *family
	redisUp   *family
	redisPing *family

	sloCompliance *family
	sloBudget     *family
	sloBurn       *family

	sloLatencyThreshold float64
}

var (
	registryOnce sync.Once
	active       *Metrics
)

func Enabled() bool {
	return envBool("METRICS_ENABLED")
}

// Current returns the registry built by Init, or nil when metrics are off.
func Current() *Metrics {
	return active
}

func scrapeInterval() time.Duration {
	return envSeconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	registryOnce.Do(func() {
		reg := &registry{}
		m := &Metrics{reg: reg}
		m.apiRequests = reg.counter("ps_api_requests_total", "Total API requests by method/route/status.", "method", "route", "status")
		m.apiLatency = reg.histogram(
			"ps_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			"method", "route", "status",
		)
		m.apiInflight = reg.gauge("ps_api_inflight_requests", "In-flight API requests.")
		m.apiReqTotal = reg.counter("ps_api_requests_total_all", "Total API requests (all).")
		m.apiReqError = reg.counter("ps_api_requests_error_total", "Total API requests with 5xx status.")
		m.apiReqGood = reg.counter("ps_api_requests_good_latency_total", "Total API requests under SLO latency threshold.")
		m.ingestSessions = reg.counter(
			"ps_ingest_sessions_total",
			"Sensor session uploads by result (accepted/duplicate/rejected/error).",
			"result",
		)
		m.ingestLatency = reg.histogram(
			"ps_ingest_duration_seconds",
			"Sensor upload processing latency in seconds by result.",
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			"result",
		)
		m.ingestTotal = reg.counter("ps_ingest_total_all", "Total sensor upload attempts (all).")
		m.ingestError = reg.counter("ps_ingest_error_total", "Total sensor uploads that failed server-side.")
		m.ingestQuality = reg.counter(
			"ps_ingest_quality_issues_total",
			"Rejected upload field violations by stage/issue/field.",
			"stage", "issue", "field",
		)
		m.alertsCreated = reg.counter("ps_alerts_created_total", "Alerts created by type/severity.", "type", "severity")
		m.analysisRuns = reg.counter("ps_analysis_runs_total", "Analysis runs by status.", "status")
		m.analysisLatency = reg.histogram(
			"ps_analysis_run_duration_seconds",
			"Analysis run duration in seconds by status.",
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			"status",
		)
		m.analysisQueueDepth = reg.gauge("ps_analysis_queue_depth", "Sessions waiting in the analysis queue.")
		m.analysisDropped = reg.counter("ps_analysis_dropped_total", "Sessions dropped because the analysis queue was full.")
		m.analysisTotal = reg.counter("ps_analysis_runs_total_all", "Total analysis runs (all).")
		m.analysisError = reg.counter("ps_analysis_runs_error_total", "Total analysis runs with failure status.")
		m.aggregateOps = reg.histogram(
			"ps_aggregate_operation_duration_seconds",
			"Aggregate write operation duration in seconds by operation/status.",
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			"operation", "status",
		)
		m.aggregateOpsCt = reg.counter("ps_aggregate_operation_total", "Aggregate write operations by operation/status.", "operation", "status")
		m.aggregateConflicts = reg.counter("ps_aggregate_conflict_total", "Aggregate uniqueness conflicts by operation.", "operation")
		m.aggregateRetries = reg.counter("ps_aggregate_retry_total", "Aggregate retries by operation.", "operation")
		m.devicesOffline = reg.counter("ps_devices_marked_offline_total", "Devices flipped to inactive by the offline sweeper.")
		m.deviceStatus = reg.gauge("ps_devices_by_status", "Registered devices by status.", "status")
		m.pgStats = reg.gauge("ps_postgres_stats", "Postgres connection stats.", "metric")
		m.redisUp = reg.gauge("ps_redis_up", "Redis connectivity (1=up, 0=down).")
		m.redisPing = reg.gauge("ps_redis_ping_seconds", "Redis ping latency in seconds.")
		m.sloCompliance = reg.gauge("ps_slo_compliance", "SLO compliance (SLI) over window.", "slo", "window")
		m.sloBudget = reg.gauge("ps_slo_error_budget_remaining", "Error budget remaining (0-1).", "slo", "window")
		m.sloBurn = reg.gauge("ps_slo_burn_rate", "Error budget burn rate.", "slo", "window")

		threshold := envFloat("SLO_API_LATENCY_THRESHOLD_SECONDS", 0.5)
		if threshold <= 0 {
			threshold = 0.5
		}
		m.sloLatencyThreshold = threshold

		active = m
		if log != nil {
			log.Info("metrics registry enabled")
		}
	})
	return active
}

// StartServer exposes the registry on its own listener, away from the API
// port, so scrapes never compete with product traffic.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if log != nil {
				log.Error("metrics listener failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	return m.reg.render(w)
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = valueOr(method, "UNKNOWN")
	route = valueOr(route, "unknown")
	status = valueOr(status, "0")
	m.apiRequests.inc(method, route, status)
	m.apiLatency.observe(dur.Seconds(), method, route, status)
	m.apiReqTotal.inc()
	if len(status) == 3 && status[0] == '5' {
		m.apiReqError.inc()
	}
	if m.sloLatencyThreshold > 0 && dur.Seconds() <= m.sloLatencyThreshold {
		m.apiReqGood.inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.add(1)
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.add(-1)
}

// ObserveIngest records one upload attempt. Result "error" means the service
// failed; "rejected" and "duplicate" are the caller's doing and do not burn
// error budget.
func (m *Metrics) ObserveIngest(result string, dur time.Duration) {
	if m == nil {
		return
	}
	result = valueOr(strings.ToLower(result), "unknown")
	m.ingestSessions.inc(result)
	if dur > 0 {
		m.ingestLatency.observe(dur.Seconds(), result)
	}
	m.ingestTotal.inc()
	if result == "error" {
		m.ingestError.inc()
	}
}

func (m *Metrics) IncIngestQualityIssue(stage, issue, field string) {
	if m == nil {
		return
	}
	m.ingestQuality.inc(valueOr(stage, "unknown"), valueOr(issue, "unknown"), valueOr(field, "none"))
}

func (m *Metrics) IncAlertCreated(alertType, severity string) {
	if m == nil {
		return
	}
	m.alertsCreated.inc(valueOr(alertType, "unknown"), valueOr(severity, "unknown"))
}

func (m *Metrics) ObserveAnalysis(status string, dur time.Duration) {
	if m == nil {
		return
	}
	status = valueOr(strings.ToLower(status), "unknown")
	m.analysisRuns.inc(status)
	if dur > 0 {
		m.analysisLatency.observe(dur.Seconds(), status)
	}
	m.analysisTotal.inc()
	if isFailureStatus(status) {
		m.analysisError.inc()
	}
}

func (m *Metrics) SetAnalysisQueueDepth(n int) {
	if m == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	m.analysisQueueDepth.set(float64(n))
}

func (m *Metrics) IncAnalysisDropped() {
	if m == nil {
		return
	}
	m.analysisDropped.inc()
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	operation = valueOr(operation, "unknown")
	status = valueOr(status, "unknown")
	m.aggregateOpsCt.inc(operation, status)
	if dur > 0 {
		m.aggregateOps.observe(dur.Seconds(), operation, status)
	}
}

func (m *Metrics) IncAggregateConflict(operation string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.inc(valueOr(operation, "unknown"))
}

func (m *Metrics) IncAggregateRetry(operation string) {
	if m == nil {
		return
	}
	m.aggregateRetries.inc(valueOr(operation, "unknown"))
}

func (m *Metrics) IncDeviceMarkedOffline() {
	if m == nil {
		return
	}
	m.devicesOffline.inc()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	poll(ctx, scrapeInterval(), func(ctx context.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: postgres stats unavailable", "error", err)
			}
			return
		}
		st := sqlDB.Stats()
		for name, v := range map[string]float64{
			"open_connections":      float64(st.OpenConnections),
			"in_use":                float64(st.InUse),
			"idle":                  float64(st.Idle),
			"wait_count":            float64(st.WaitCount),
			"wait_duration_seconds": st.WaitDuration.Seconds(),
			"max_open_connections":  float64(st.MaxOpenConnections),
			"max_idle_closed":       float64(st.MaxIdleClosed),
			"max_idle_time_closed":  float64(st.MaxIdleTimeClosed),
			"max_lifetime_closed":   float64(st.MaxLifetimeClosed),
		} {
			m.pgStats.set(v, name)
		}
	})
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		<-ctx.Done()
		_ = rdb.Close()
	}()
	poll(ctx, scrapeInterval(), func(ctx context.Context) {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.set(0)
			if log != nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.set(1)
		m.redisPing.set(time.Since(start).Seconds())
	})
}

func (m *Metrics) StartDeviceStatusCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	known := []string{
		string(domainregistry.DeviceStatusActive),
		string(domainregistry.DeviceStatusInactive),
		string(domainregistry.DeviceStatusMaintenance),
		string(domainregistry.DeviceStatusRetired),
	}
	poll(ctx, scrapeInterval(), func(ctx context.Context) {
		// Zero first so a status with no remaining devices drops to 0
		// instead of holding its last count.
		for _, s := range known {
			m.deviceStatus.set(0, s)
		}
		var rows []struct {
			Status string
			Count  int64
		}
		if err := db.WithContext(ctx).
			Model(&domainregistry.Device{}).
			Select("status, count(*) as count").
			Group("status").
			Scan(&rows).Error; err != nil {
			if log != nil {
				log.Warn("metrics: device status query failed", "error", err)
			}
			return
		}
		for _, row := range rows {
			m.deviceStatus.set(float64(row.Count), valueOr(row.Status, "unknown"))
		}
	})
}

// poll runs tick on the given interval until ctx cancels.
func poll(ctx context.Context, every time.Duration, tick func(context.Context)) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

func valueOr(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}

func isFailureStatus(status string) bool {
	switch status {
	case "failed", "error", "timeout", "panic":
		return true
	}
	return false
}
