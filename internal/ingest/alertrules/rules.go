// Package alertrules evaluates a validated upload against the ingestion
// alert rules. Evaluation is pure: rules read the payload and the prior
// battery level, never the database.
package alertrules

import (
	"fmt"

	"github.com/pawsense/pawsense-backend/internal/domain/telemetry"
	"github.com/pawsense/pawsense-backend/internal/ingest"
)

// AlertSpec is an alert before persistence. The ingestion transaction fills
// in the session, device, and pet references.
type AlertSpec struct {
	Type     telemetry.AlertType
	Severity telemetry.AlertSeverity
	Message  string
	Data     map[string]interface{}
}

// Evaluate runs every rule independently and returns the alerts to persist,
// anomalies first, then battery, then behavior. priorBattery is the battery
// level from the device's previous session, nil when this is the first.
func Evaluate(cfg Config, p *ingest.Payload, priorBattery *int) []AlertSpec {
	var specs []AlertSpec
	specs = append(specs, evaluateAnomalies(p)...)
	specs = append(specs, evaluateBattery(cfg, p, priorBattery)...)
	specs = append(specs, evaluateBehavior(p)...)
	return specs
}

// One alert per reported abnormality label, so acknowledging one finding
// does not hide the others.
func evaluateAnomalies(p *ingest.Payload) []AlertSpec {
	ha := p.OfflineInference.HealthAssessment
	specs := make([]AlertSpec, 0, len(ha.AbnormalitiesDetected))
	for _, label := range ha.AbnormalitiesDetected {
		specs = append(specs, AlertSpec{
			Type:     telemetry.AlertTypeHealthAnomaly,
			Severity: telemetry.AlertSeverityWarning,
			Message:  fmt.Sprintf("Health anomaly detected: %s", label),
			Data: map[string]interface{}{
				"abnormality":          label,
				"overall_health_score": ha.OverallHealthScore,
			},
		})
	}
	return specs
}

// Battery alerts fire on the crossing, not the state: a device sitting at
// 15% alerts once when it drops below the threshold and stays silent on the
// uploads that follow. An unknown prior level counts as above threshold.
func evaluateBattery(cfg Config, p *ingest.Payload, priorBattery *int) []AlertSpec {
	level := p.SystemStatus.BatteryLevel
	if level >= cfg.BatteryLowThreshold {
		return nil
	}
	if priorBattery != nil && *priorBattery < cfg.BatteryLowThreshold {
		return nil
	}

	severity := telemetry.AlertSeverityWarning
	if level < cfg.BatteryCriticalThreshold {
		severity = telemetry.AlertSeverityCritical
	}
	data := map[string]interface{}{
		"battery_level": level,
	}
	if priorBattery != nil {
		data["previous_battery_level"] = *priorBattery
	}
	return []AlertSpec{{
		Type:     telemetry.AlertTypeBatteryLow,
		Severity: severity,
		Message:  fmt.Sprintf("Device battery low: %d%%", level),
		Data:     data,
	}}
}

func evaluateBehavior(p *ingest.Payload) []AlertSpec {
	ba := p.OfflineInference.BehaviorAnalysis
	if !ba.UnusualBehaviorDetected {
		return nil
	}
	return []AlertSpec{{
		Type:     telemetry.AlertTypeUnusualBehavior,
		Severity: telemetry.AlertSeverityWarning,
		Message:  "Unusual behavior pattern detected",
		Data: map[string]interface{}{
			"behavior_pattern": ba.BehaviorPattern,
			"activity_level":   ba.ActivityLevel,
			"mood_state":       ba.MoodState,
		},
	}}
}
