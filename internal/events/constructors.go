package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

func newEvent(eventType EventType, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}

// NewAnomalyEvent creates an anomaly_detected event.
func NewAnomalyEvent(a types.Anomaly) (*Event, error) {
	event := newEvent(EventTypeAnomalyDetected, SeverityFor(a.Severity), a.Description)
	if err := event.SetAnomalyData(AnomalyData{
		AnomalyID: a.ID,
		Type:      string(a.Type),
		Metric:    a.Metric,
		Value:     a.Value,
		Severity:  a.Severity,
	}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewAlertEvent creates an alert_raised or alert_acknowledged event.
func NewAlertEvent(eventType EventType, a types.Alert) (*Event, error) {
	message := a.Title
	if eventType == EventTypeAlertAcknowledged {
		message = fmt.Sprintf("acknowledged: %s", a.Title)
	}
	event := newEvent(eventType, SeverityFor(a.Severity), message)
	if err := event.SetAlertData(AlertData{
		AlertID:   a.ID,
		AlertType: a.Type,
		Metric:    a.Metric,
		Severity:  a.Severity,
		Title:     a.Title,
	}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewInterventionEvent creates an intervention_started or intervention_completed event.
func NewInterventionEvent(eventType EventType, iv types.Intervention, level float64) (*Event, error) {
	severity := SeverityInfo
	if iv.Outcome == types.OutcomeFailed {
		severity = SeverityWarning
	}
	message := fmt.Sprintf("intervention %s %s", iv.Kind, iv.Outcome)
	event := newEvent(eventType, severity, message)
	if err := event.SetInterventionData(InterventionData{
		InterventionID:  iv.ID,
		Kind:            iv.Kind,
		Outcome:         iv.Outcome,
		Forced:          iv.Forced,
		AdaptationLevel: level,
	}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewMonitoringEvent creates a scheduler lifecycle event (no alert or anomaly attached).
func NewMonitoringEvent(eventType EventType, severity EventSeverity, message string, data MonitoringData) *Event {
	event := newEvent(eventType, severity, message)
	// MonitoringData only holds strings; conversion cannot fail
	_ = event.SetMonitoringData(data)
	return event
}
