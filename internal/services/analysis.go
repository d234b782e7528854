package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pawsense/pawsense-backend/internal/clients/analysis"
	dataagg "github.com/pawsense/pawsense-backend/internal/data/aggregates"
	"github.com/pawsense/pawsense-backend/internal/data/repos"
	domainagg "github.com/pawsense/pawsense-backend/internal/domain/aggregates"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/ingest"
	"github.com/pawsense/pawsense-backend/internal/observability"
	"github.com/pawsense/pawsense-backend/internal/platform/envutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// AnalysisConfig controls the dispatcher pool and the request fields sent
// with every analysis call.
type AnalysisConfig struct {
	Model     string
	Language  string
	Workers   int
	QueueSize int
	Options   analysis.AnalyzeOptions
}

func DefaultAnalyzeOptions() analysis.AnalyzeOptions {
	return analysis.AnalyzeOptions{
		ConservativeFill: true,
		MaxPenalty:       0.3,
	}
}

func AnalysisConfigFromEnv(log *logger.Logger) AnalysisConfig {
	cfg := AnalysisConfig{
		Model:     envutil.GetEnv("ANALYSIS_MODEL", "pawsense-insight-1", log),
		Language:  envutil.GetEnv("ANALYSIS_LANGUAGE", "en", log),
		Workers:   envutil.GetEnvAsInt("ANALYSIS_WORKERS", 2, log),
		QueueSize: envutil.GetEnvAsInt("ANALYSIS_QUEUE_SIZE", 256, log),
	}

	path := strings.TrimSpace(os.Getenv("RULES_CONFIG_PATH"))
	opts, err := LoadAnalyzeOptions(path, DefaultAnalyzeOptions())
	if err != nil && log != nil {
		log.Warn("Analysis options config not loaded, keeping defaults", "path", path, "error", err)
	}
	cfg.Options = opts
	return cfg
}

type yamlAnalysisSpec struct {
	Analysis struct {
		ConservativeFill *bool    `yaml:"conservative_fill"`
		MaxPenalty       *float64 `yaml:"max_penalty"`
	} `yaml:"analysis"`
}

// LoadAnalyzeOptions reads the analysis section of the rules config file.
// It shares the file with the alert thresholds; an empty path or an omitted
// field keeps the base value.
func LoadAnalyzeOptions(path string, base analysis.AnalyzeOptions) (analysis.AnalyzeOptions, error) {
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read analysis options config: %w", err)
	}
	var spec yamlAnalysisSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return base, fmt.Errorf("parse analysis options config: %w", err)
	}

	if spec.Analysis.ConservativeFill != nil {
		base.ConservativeFill = *spec.Analysis.ConservativeFill
	}
	if spec.Analysis.MaxPenalty != nil {
		base.MaxPenalty = *spec.Analysis.MaxPenalty
	}
	return base, nil
}

// AnalysisService owns the post-ingestion analysis pipeline. Submit is the
// fire-and-forget entry ingestion uses; ReTrigger is the synchronous entry
// behind the manual endpoint. Both funnel into the same per-session flight,
// so a session is analyzed at most once no matter how it arrives.
type AnalysisService interface {
	Submit(sessionID uuid.UUID) bool
	ReTrigger(ctx context.Context, sessionID uuid.UUID) (*telemetry.SensorAnalysis, error)
	Start(ctx context.Context)
	Stop()
}

type analysisService struct {
	log      *logger.Logger
	cfg      AnalysisConfig
	client   analysis.Client
	devices  repos.DeviceRepo
	bindings repos.BindingRepo
	pets     repos.PetRepo
	records  repos.RecordRepo
	analyses repos.AnalysisRepo
	metrics  *observability.Metrics

	group singleflight.Group
	queue chan uuid.UUID
	wg    sync.WaitGroup
}

// NewAnalysisService builds the dispatcher. A nil client disables the
// pipeline: the queue is never allocated, Submit reports false and Start
// is a no-op.
func NewAnalysisService(
	baseLog *logger.Logger,
	cfg AnalysisConfig,
	client analysis.Client,
	devices repos.DeviceRepo,
	bindings repos.BindingRepo,
	pets repos.PetRepo,
	records repos.RecordRepo,
	analyses repos.AnalysisRepo,
	metrics *observability.Metrics,
) AnalysisService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}

	svc := &analysisService{
		log:      baseLog.With("service", "AnalysisService"),
		cfg:      cfg,
		client:   client,
		devices:  devices,
		bindings: bindings,
		pets:     pets,
		records:  records,
		analyses: analyses,
		metrics:  metrics,
	}
	if client != nil {
		svc.queue = make(chan uuid.UUID, cfg.QueueSize)
	}
	return svc
}

func (as *analysisService) Start(ctx context.Context) {
	if as == nil {
		return
	}
	if as.client == nil || as.queue == nil {
		as.log.Info("Analysis trigger disabled: no client configured")
		return
	}
	as.log.Info("Starting analysis worker pool", "workers", as.cfg.Workers, "queue_size", cap(as.queue))

	for i := 0; i < as.cfg.Workers; i++ {
		workerID := i + 1
		as.wg.Add(1)
		go as.runLoop(ctx, workerID)
	}
}

// Stop blocks until every worker has exited. Cancel the Start context first.
func (as *analysisService) Stop() {
	if as == nil {
		return
	}
	as.wg.Wait()
}

// Submit queues a session without blocking the caller. A saturated queue
// drops the session; the analysis can still be produced later through
// ReTrigger.
func (as *analysisService) Submit(sessionID uuid.UUID) bool {
	if as == nil || as.queue == nil {
		return false
	}
	select {
	case as.queue <- sessionID:
		as.metrics.SetAnalysisQueueDepth(len(as.queue))
		return true
	default:
		as.log.Warn("Analysis queue saturated, dropping session", "session_id", sessionID)
		as.metrics.IncAnalysisDropped()
		return false
	}
}

func (as *analysisService) ReTrigger(ctx context.Context, sessionID uuid.UUID) (*telemetry.SensorAnalysis, error) {
	const op = "Telemetry.Analysis.ReTrigger"
	if as == nil || as.records == nil || as.analyses == nil || as.devices == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "analysis service not configured", nil)
	}
	if as.client == nil {
		return nil, domainagg.NewError(domainagg.CodePreconditionFailed, op, "analysis client not configured", nil)
	}
	return as.analyzeSession(ctx, sessionID)
}

func (as *analysisService) runLoop(ctx context.Context, workerID int) {
	defer as.wg.Done()

	for {
		select {
		case <-ctx.Done():
			as.log.Info("Analysis worker stopped", "worker_id", workerID)
			return
		case sessionID := <-as.queue:
			as.metrics.SetAnalysisQueueDepth(len(as.queue))
			func() {
				defer func() {
					if r := recover(); r != nil {
						as.log.Error("Analysis worker panic",
							"worker_id", workerID,
							"session_id", sessionID,
							"panic", r,
						)
					}
				}()

				if _, err := as.analyzeSession(ctx, sessionID); err != nil {
					// Observability only. Ingestion already answered the device.
					as.log.Warn("Session analysis failed",
						"worker_id", workerID,
						"session_id", sessionID,
						"error", err,
					)
				}
			}()
		}
	}
}

// analyzeSession collapses concurrent requests for the same session into one
// in-flight call. The unique index on the analysis table backstops the rare
// case of two processes racing past this.
func (as *analysisService) analyzeSession(ctx context.Context, sessionID uuid.UUID) (*telemetry.SensorAnalysis, error) {
	out, err, _ := as.group.Do(sessionID.String(), func() (interface{}, error) {
		return as.analyzeOnce(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	record, _ := out.(*telemetry.SensorAnalysis)
	return record, nil
}

func (as *analysisService) analyzeOnce(ctx context.Context, sessionID uuid.UUID) (*telemetry.SensorAnalysis, error) {
	const op = "Telemetry.Analysis.AnalyzeSession"
	start := time.Now()

	existing, err := as.analyses.GetBySessionID(ctx, nil, sessionID)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "analysis lookup failed", err)
	}
	if existing != nil {
		as.log.Debug("Session already analyzed, skipping", "session_id", sessionID, "analysis_id", existing.ID)
		return existing, nil
	}

	agg, err := as.records.LoadAggregate(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("session not found: %s", sessionID), err)
		}
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "session load failed", err)
	}

	device, err := as.devices.GetByID(ctx, nil, agg.Session.DeviceID)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "device load failed", err)
	}

	petID, profile := as.petContext(ctx, device.ID)

	payload, err := json.Marshal(ingest.Canonical(agg, device.ExternalID, ingest.DefaultCanonical))
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "payload encode failed", err)
	}

	result, err := as.client.Analyze(ctx, analysis.AnalyzeRequest{
		Payload:    payload,
		PetProfile: profile,
		Language:   as.cfg.Language,
		Options:    as.cfg.Options,
	})
	if err != nil {
		as.metrics.ObserveAnalysis("error", time.Since(start))
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "analysis request failed", err)
	}

	record, err := as.persist(ctx, op, agg, petID, result)
	if err != nil {
		as.metrics.ObserveAnalysis("error", time.Since(start))
		return nil, err
	}
	as.metrics.ObserveAnalysis("success", time.Since(start))
	as.log.Info("Session analysis stored",
		"session_id", sessionID,
		"analysis_id", record.ID,
		"confidence", record.Confidence,
		"service_version", result.Version,
	)
	return record, nil
}

// petContext resolves the pet bound to the device at analysis time. Unbound
// devices are normal; lookup failures degrade to an anonymous profile
// rather than failing the analysis.
func (as *analysisService) petContext(ctx context.Context, deviceID uuid.UUID) (*uuid.UUID, *analysis.PetProfile) {
	binding, err := as.bindings.GetActiveByDeviceID(ctx, nil, deviceID)
	if err != nil {
		as.log.Warn("Pet binding lookup failed", "device_id", deviceID, "error", err)
		return nil, nil
	}
	if binding == nil {
		return nil, nil
	}

	petID := binding.PetID
	pet, err := as.pets.GetByID(ctx, nil, petID)
	if err != nil {
		as.log.Warn("Pet lookup failed", "pet_id", petID, "error", err)
		return &petID, nil
	}
	return &petID, petProfileFor(pet)
}

func petProfileFor(pet *registry.Pet) *analysis.PetProfile {
	if pet == nil {
		return nil
	}
	profile := &analysis.PetProfile{
		ID:     pet.ID.String(),
		Name:   pet.Name,
		Breed:  pet.Breed,
		Gender: pet.Gender,
	}
	if pet.BirthAt != nil {
		profile.AgeMonths = monthsSince(*pet.BirthAt, time.Now().UTC())
	}
	if pet.WeightKg != nil {
		profile.WeightKG = *pet.WeightKg
	}
	return profile
}

// monthsSince counts whole calendar months from birth to now.
func monthsSince(birth, now time.Time) int {
	if !birth.Before(now) {
		return 0
	}
	months := (now.Year()-birth.Year())*12 + int(now.Month()) - int(birth.Month())
	if now.Day() < birth.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func (as *analysisService) persist(ctx context.Context, op string, agg *telemetry.SessionAggregate, petID *uuid.UUID, result *analysis.AnalyzeResult) (*telemetry.SensorAnalysis, error) {
	metricsJSON := datatypes.JSON("{}")
	if len(result.Metrics) > 0 {
		raw, err := json.Marshal(result.Metrics)
		if err != nil {
			return nil, domainagg.NewError(domainagg.CodeInternal, op, "metrics encode failed", err)
		}
		metricsJSON = datatypes.JSON(raw)
	}

	var metaJSON datatypes.JSON
	if len(result.MetricsMeta) > 0 {
		raw, err := json.Marshal(result.MetricsMeta)
		if err != nil {
			return nil, domainagg.NewError(domainagg.CodeInternal, op, "metrics meta encode failed", err)
		}
		metaJSON = datatypes.JSON(raw)
	}

	insights := result.Insights
	if insights.Highlights == nil {
		insights.Highlights = []string{}
	}
	if insights.Watchouts == nil {
		insights.Watchouts = []string{}
	}
	if insights.Recommendations == nil {
		insights.Recommendations = []string{}
	}
	insightsJSON, err := json.Marshal(insights)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "insights encode failed", err)
	}

	optionsJSON, err := json.Marshal(as.cfg.Options)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "options encode failed", err)
	}

	row := &telemetry.SensorAnalysis{
		ID:          uuid.New(),
		SessionID:   agg.Session.ID,
		DeviceID:    agg.Session.DeviceID,
		PetID:       petID,
		Metrics:     metricsJSON,
		MetricsMeta: metaJSON,
		Insights:    datatypes.JSON(insightsJSON),
		Confidence:  math.Round(result.Confidence*100) / 100,
		Model:       as.cfg.Model,
		Options:     datatypes.JSON(optionsJSON),
		SafetyNote:  result.SafetyNote,
		AnalyzedAt:  time.Now().UTC(),
	}

	created, err := as.analyses.Create(ctx, nil, row)
	if err == nil {
		return created, nil
	}
	if domainagg.IsCode(dataagg.MapError(op, err), domainagg.CodeConflict) {
		// Lost the insert race; the winner's row is the analysis.
		winner, lookupErr := as.analyses.GetBySessionID(ctx, nil, agg.Session.ID)
		if lookupErr == nil && winner != nil {
			return winner, nil
		}
	}
	return nil, domainagg.NewError(domainagg.CodeInternal, op, "analysis persist failed", err)
}
