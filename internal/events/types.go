package events

import (
	"encoding/json"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// EventType represents the type of event published by the monitoring engine.
type EventType string

const (
	// EventTypeAnomalyDetected indicates the detector classified a sample as anomalous
	EventTypeAnomalyDetected EventType = "anomaly_detected"
	// EventTypeAlertRaised indicates the alert manager raised a new alert
	EventTypeAlertRaised EventType = "alert_raised"
	// EventTypeAlertAcknowledged indicates an alert was acknowledged
	EventTypeAlertAcknowledged EventType = "alert_acknowledged"

	// Intervention lifecycle events
	// EventTypeInterventionStarted indicates an intervention was selected and started
	EventTypeInterventionStarted EventType = "intervention_started"
	// EventTypeInterventionCompleted indicates an intervention reached a terminal outcome
	EventTypeInterventionCompleted EventType = "intervention_completed"

	// Scheduler lifecycle events
	// EventTypeMonitoringStarted indicates the scheduler became active
	EventTypeMonitoringStarted EventType = "monitoring_started"
	// EventTypeMonitoringStopped indicates the scheduler stopped
	EventTypeMonitoringStopped EventType = "monitoring_stopped"
	// EventTypeBackgroundTaskFailed indicates a background task exhausted its retries
	EventTypeBackgroundTaskFailed EventType = "background_task_failed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// SeverityFor maps a health severity onto an event severity
func SeverityFor(s types.Severity) EventSeverity {
	switch s {
	case types.SeverityCritical:
		return SeverityCritical
	case types.SeverityHigh:
		return SeverityError
	case types.SeverityMedium:
		return SeverityWarning
	}
	return SeverityInfo
}

// Event is a push notification from the monitoring engine.
// Events are immutable once published; subscribers share the same pointer.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// AnomalyData contains structured data for anomaly_detected events.
type AnomalyData struct {
	AnomalyID string           `json:"anomaly_id"`
	Type      string           `json:"type"`
	Metric    types.MetricKind `json:"metric"`
	Value     float64          `json:"value"`
	Severity  types.Severity   `json:"severity"`
}

// MarshalJSON encodes a NaN or infinite reading as null
func (d AnomalyData) MarshalJSON() ([]byte, error) {
	type plain AnomalyData
	return json.Marshal(struct {
		plain
		Value *float64 `json:"value"`
	}{plain(d), types.FiniteOrNull(d.Value)})
}

// UnmarshalJSON decodes a null reading as NaN
func (d *AnomalyData) UnmarshalJSON(data []byte) error {
	type plain AnomalyData
	aux := struct {
		*plain
		Value *float64 `json:"value"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Value = types.NullAsNaN(aux.Value)
	return nil
}

// AlertData contains structured data for alert_raised and alert_acknowledged events.
type AlertData struct {
	AlertID   string           `json:"alert_id"`
	AlertType types.AlertType  `json:"alert_type"`
	Metric    types.MetricKind `json:"metric,omitempty"`
	Severity  types.Severity   `json:"severity"`
	Title     string           `json:"title"`
}

// InterventionData contains structured data for intervention events.
type InterventionData struct {
	InterventionID  string                    `json:"intervention_id"`
	Kind            types.InterventionKind    `json:"kind"`
	Outcome         types.InterventionOutcome `json:"outcome"`
	Forced          bool                      `json:"forced"`
	AdaptationLevel float64                   `json:"adaptation_level"`
}

// MonitoringData contains structured data for scheduler lifecycle events.
type MonitoringData struct {
	State  types.MonitoringState `json:"state"`
	Task   string                `json:"task,omitempty"`
	Reason string                `json:"reason,omitempty"`
}
