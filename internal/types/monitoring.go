package types

import (
	"time"
)

// InterventionKind names a corrective action the engine can select
type InterventionKind string

// InterventionOutcome is the lifecycle state of an intervention
type InterventionOutcome string

const (
	OutcomePending   InterventionOutcome = "pending"
	OutcomeSucceeded InterventionOutcome = "succeeded"
	OutcomeFailed    InterventionOutcome = "failed"
)

// IsTerminal reports whether the outcome ends the intervention
func (o InterventionOutcome) IsTerminal() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// IsValid checks if the outcome value is valid
func (o InterventionOutcome) IsValid() bool {
	switch o {
	case OutcomePending, OutcomeSucceeded, OutcomeFailed:
		return true
	}
	return false
}

// Intervention is a corrective action selected by the adaptive feedback loop.
// It moves from pending to exactly one terminal outcome and is then archived.
type Intervention struct {
	ID             string              `json:"id"`
	Kind           InterventionKind    `json:"kind"`
	TriggerAlertID string              `json:"trigger_alert_id,omitempty"`
	TriggerMetric  MetricKind          `json:"trigger_metric,omitempty"`
	Severity       Severity            `json:"severity"`
	Forced         bool                `json:"forced"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	Outcome        InterventionOutcome `json:"outcome"`
	Note           string              `json:"note,omitempty"`
}

// AdaptationState is the intervention engine's view of how well past
// interventions worked
type AdaptationState struct {
	AdaptationLevel     float64        `json:"adaptation_level"`
	ActiveInterventions []Intervention `json:"active_interventions"`
	SuccessHistory      []bool         `json:"success_history"`
}

// SuccessRate returns the fraction of successful outcomes in the history
func (a AdaptationState) SuccessRate() float64 {
	if len(a.SuccessHistory) == 0 {
		return 0
	}
	ok := 0
	for _, s := range a.SuccessHistory {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(a.SuccessHistory))
}

// MonitoringStats are per-engine counters; they reset to zero on restart
type MonitoringStats struct {
	SamplesCollected     int64     `json:"samples_collected"`
	AnomaliesDetected    int64     `json:"anomalies_detected"`
	AlertsTriggered      int64     `json:"alerts_triggered"`
	InterventionsStarted int64     `json:"interventions_started"`
	SamplingErrors       int64     `json:"sampling_errors"`
	DetectionErrors      int64     `json:"detection_errors"`
	AlertErrors          int64     `json:"alert_errors"`
	BackgroundErrors     int64     `json:"background_errors"`
	LastUpdateTime       time.Time `json:"last_update_time"`
}

// TotalErrors sums the per-stage error counters
func (s MonitoringStats) TotalErrors() int64 {
	return s.SamplingErrors + s.DetectionErrors + s.AlertErrors + s.BackgroundErrors
}

// MonitoringQuality summarizes how well data collection is going
type MonitoringQuality string

const (
	QualityExcellent MonitoringQuality = "excellent"
	QualityGood      MonitoringQuality = "good"
	QualityFair      MonitoringQuality = "fair"
	QualityPoor      MonitoringQuality = "poor"
)

// QualityReport explains a MonitoringQuality value
type QualityReport struct {
	Level            MonitoringQuality `json:"level"`
	SampleDensity    float64           `json:"sample_density"`
	ConnectedDevices int               `json:"connected_devices"`
}

// Forecast is the prediction engine's current view of where metrics are heading
type Forecast struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Horizon     time.Duration          `json:"horizon"`
	Predictions map[MetricKind]float64 `json:"predictions"`
	RiskScore   float64                `json:"risk_score"`
}

// Device is a sensor known to the device registry
type Device struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Connected    bool      `json:"connected"`
	LastSeen     time.Time `json:"last_seen"`
	BatteryLevel float64   `json:"battery_level"`
}

// MonitoringState is the scheduler lifecycle state
type MonitoringState string

const (
	StateStopped  MonitoringState = "stopped"
	StateStarting MonitoringState = "starting"
	StateActive   MonitoringState = "active"
	StateStopping MonitoringState = "stopping"
)

// HealthStatus is the combined current view returned to callers
type HealthStatus struct {
	Timestamp time.Time       `json:"timestamp"`
	State     MonitoringState `json:"state"`
	Metrics   *MetricSnapshot `json:"metrics"`
	Anomalies []Anomaly       `json:"anomalies"`
	Forecast  *Forecast       `json:"forecast,omitempty"`
	Quality   QualityReport   `json:"quality"`
}

// StatsSnapshot is a persisted copy of the monitoring counters
type StatsSnapshot struct {
	RecordedAt time.Time       `json:"recorded_at"`
	Stats      MonitoringStats `json:"stats"`
}

// AdaptationSnapshot is a persisted adaptation level
type AdaptationSnapshot struct {
	RecordedAt  time.Time `json:"recorded_at"`
	Level       float64   `json:"level"`
	SuccessRate float64   `json:"success_rate"`
	Outcomes    int       `json:"outcomes"`
}
