package observability

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// ring holds one delta per evaluation tick and maintains the sum of the
// trailing window.
type ring struct {
	slots []float64
	next  int
	sum   float64
}

func newRing(n int) *ring {
	if n < 1 {
		n = 1
	}
	return &ring{slots: make([]float64, n)}
}

func (r *ring) push(v float64) {
	r.sum += v - r.slots[r.next]
	r.slots[r.next] = v
	r.next = (r.next + 1) % len(r.slots)
}

// tracked follows one monotonic counter, windowing its increase. A raw
// reading below the previous one means the process restarted, so the whole
// post-reset value counts as that tick's delta.
type tracked struct {
	src  *family
	prev float64
	win  *ring
}

func (t *tracked) tick() {
	cur := t.src.total()
	d := cur - t.prev
	if cur < t.prev {
		d = cur
	}
	t.prev = cur
	t.win.push(d)
}

func (t *tracked) sum() float64 { return t.win.sum }

// sloRule is one objective: the good fraction of total must stay above
// target over the window.
type sloRule struct {
	name   string
	target float64
	total  *tracked
	bad    func() float64
}

type sloEvaluator struct {
	metrics     *Metrics
	log         *logger.Logger
	interval    time.Duration
	windowLabel string
	tracked     []*tracked
	rules       []sloRule

	webhook     string
	owner       string
	runbook     string
	minInterval time.Duration
	burnWarn    float64
	burnCrit    float64
	throttle    alertThrottle
}

// StartSLOEvaluator periodically folds the raw counters into compliance,
// error-budget, and burn-rate gauges, and pages the ops webhook when burn
// crosses the configured rates.
func (m *Metrics) StartSLOEvaluator(ctx context.Context, log *logger.Logger) {
	if m == nil || !envBool("SLO_ENABLED") {
		return
	}
	e := newSLOEvaluator(m, log)
	go e.run(ctx)
	if log != nil {
		log.Info("slo evaluator started", "window", e.windowLabel, "interval", e.interval.String())
	}
}

func newSLOEvaluator(m *Metrics, log *logger.Logger) *sloEvaluator {
	interval := envSeconds("SLO_EVAL_INTERVAL_SECONDS", 60)
	hours := envFloat("SLO_WINDOW_HOURS", 720)
	if hours < 1 {
		hours = 24
	}
	window := time.Duration(hours * float64(time.Hour))

	e := &sloEvaluator{
		metrics:     m,
		log:         log,
		interval:    interval,
		windowLabel: windowLabel(window),
		webhook:     envStr("SLO_ALERT_WEBHOOK_URL"),
		owner:       envStr("SLO_ALERT_OWNER"),
		runbook:     envStr("SLO_ALERT_RUNBOOK_URL"),
		minInterval: envSeconds("SLO_ALERT_MIN_INTERVAL_SECONDS", 900),
		burnWarn:    envFloat("SLO_ALERT_BURN_RATE_WARN", 2),
		burnCrit:    envFloat("SLO_ALERT_BURN_RATE_CRIT", 10),
	}

	slots := int(window / interval)
	follow := func(src *family) *tracked {
		t := &tracked{src: src, win: newRing(slots)}
		e.tracked = append(e.tracked, t)
		return t
	}
	apiTotal := follow(m.apiReqTotal)
	apiError := follow(m.apiReqError)
	apiGood := follow(m.apiReqGood)
	ingestTotal := follow(m.ingestTotal)
	ingestError := follow(m.ingestError)
	analysisTotal := follow(m.analysisTotal)
	analysisError := follow(m.analysisError)

	e.rules = []sloRule{
		{
			name:   "api_availability",
			target: sloTarget("SLO_API_AVAIL_TARGET", 0.995),
			total:  apiTotal,
			bad:    apiError.sum,
		},
		{
			name:   "api_latency",
			target: sloTarget("SLO_API_LATENCY_TARGET", 0.95),
			total:  apiTotal,
			bad:    func() float64 { return apiTotal.sum() - apiGood.sum() },
		},
		{
			name:   "ingest_success",
			target: sloTarget("SLO_INGEST_SUCCESS_TARGET", 0.995),
			total:  ingestTotal,
			bad:    ingestError.sum,
		},
		{
			name:   "analysis_success",
			target: sloTarget("SLO_ANALYSIS_SUCCESS_TARGET", 0.98),
			total:  analysisTotal,
			bad:    analysisError.sum,
		},
	}
	return e
}

func sloTarget(key string, def float64) float64 {
	return clamp01(envFloat(key, def))
}

func (e *sloEvaluator) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.evaluate()
		}
	}
}

func (e *sloEvaluator) evaluate() {
	for _, t := range e.tracked {
		t.tick()
	}
	for _, r := range e.rules {
		e.report(r)
	}
}

func (e *sloEvaluator) report(r sloRule) {
	total := r.total.sum()
	if total <= 0 {
		// No traffic burns no budget.
		e.publish(r.name, 1, 1, 0)
		return
	}
	sli := clamp01(1 - r.bad()/total)
	burn := 0.0
	if r.target < 1 {
		burn = (1 - sli) / (1 - r.target)
	}
	budget := clamp01(1 - burn)
	e.publish(r.name, sli, budget, burn)

	if e.webhook == "" || e.owner == "" {
		return
	}
	var severity string
	switch {
	case burn >= e.burnCrit:
		severity = "critical"
	case burn >= e.burnWarn:
		severity = "warning"
	default:
		return
	}
	if !e.throttle.allow(r.name+":"+severity, e.minInterval) {
		return
	}
	postWebhook(e.log, e.webhook, map[string]any{
		"title":                  "SLO burn rate alert",
		"severity":               severity,
		"owner":                  e.owner,
		"slo":                    r.name,
		"window":                 e.windowLabel,
		"sli":                    sli,
		"target":                 r.target,
		"burn_rate":              burn,
		"error_budget_remaining": budget,
		"runbook":                e.runbook,
		"timestamp":              time.Now().UTC().Format(time.RFC3339),
	}, "slo", r.name, "severity", severity)
}

func (e *sloEvaluator) publish(name string, sli, budget, burn float64) {
	e.metrics.sloCompliance.set(sli, name, e.windowLabel)
	e.metrics.sloBudget.set(budget, name, e.windowLabel)
	e.metrics.sloBurn.set(burn, name, e.windowLabel)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func windowLabel(window time.Duration) string {
	hours := window.Hours()
	switch {
	case hours >= 24 && math.Mod(hours, 24) == 0:
		return strconv.Itoa(int(hours/24)) + "d"
	case hours >= 1:
		return strconv.Itoa(int(hours)) + "h"
	default:
		return strconv.Itoa(int(window.Minutes())) + "m"
	}
}
