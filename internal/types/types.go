package types

import (
	"fmt"
	"math"
	"time"
)

// MetricKind identifies a physiological signal
type MetricKind string

const (
	MetricHeartRate        MetricKind = "heart_rate"
	MetricSystolic         MetricKind = "blood_pressure_systolic"
	MetricDiastolic        MetricKind = "blood_pressure_diastolic"
	MetricOxygenSaturation MetricKind = "oxygen_saturation"
	MetricTemperature      MetricKind = "temperature"
	MetricSteps            MetricKind = "steps"
	MetricCalories         MetricKind = "calories"
	MetricSleepQuality     MetricKind = "sleep_quality"
	MetricStressLevel      MetricKind = "stress_level"
)

// AllMetrics returns every metric the engine samples, in sampling order
func AllMetrics() []MetricKind {
	return []MetricKind{
		MetricHeartRate,
		MetricSystolic,
		MetricDiastolic,
		MetricOxygenSaturation,
		MetricTemperature,
		MetricSteps,
		MetricCalories,
		MetricSleepQuality,
		MetricStressLevel,
	}
}

// IsValid checks if the metric kind value is valid
func (m MetricKind) IsValid() bool {
	switch m {
	case MetricHeartRate, MetricSystolic, MetricDiastolic, MetricOxygenSaturation,
		MetricTemperature, MetricSteps, MetricCalories, MetricSleepQuality, MetricStressLevel:
		return true
	}
	return false
}

// HealthSample is a single reading produced by a health data source.
// Samples are values and are never mutated after creation.
type HealthSample struct {
	Timestamp time.Time  `json:"timestamp"`
	Metric    MetricKind `json:"metric"`
	Value     float64    `json:"value"`
	DeviceID  string     `json:"device_id,omitempty"`
}

// Validate checks if the sample has valid field values.
// NaN values are accepted here; the detector classifies them as data quality anomalies.
func (s HealthSample) Validate() error {
	if !s.Metric.IsValid() {
		return fmt.Errorf("invalid metric: %s", s.Metric)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// BloodPressure holds a paired systolic/diastolic reading in mmHg
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// MetricSnapshot is the aggregated view across metrics at a point in time
type MetricSnapshot struct {
	Timestamp        time.Time      `json:"timestamp"`
	HeartRate        float64        `json:"heart_rate"`
	BloodPressure    BloodPressure  `json:"blood_pressure"`
	OxygenSaturation float64        `json:"oxygen_saturation"`
	Temperature      float64        `json:"temperature"`
	Steps            float64        `json:"steps"`
	Calories         float64        `json:"calories"`
	SleepQuality     float64        `json:"sleep_quality"`
	StressLevel      float64        `json:"stress_level"`
	RawSamples       []HealthSample `json:"raw_samples,omitempty"`

	// present records which metrics had at least one sample
	present map[MetricKind]bool
}

// NewMetricSnapshot builds a snapshot from the latest sample of each metric
func NewMetricSnapshot(samples []HealthSample, at time.Time) *MetricSnapshot {
	snap := &MetricSnapshot{
		Timestamp:  at,
		RawSamples: append([]HealthSample(nil), samples...),
		present:    make(map[MetricKind]bool),
	}

	latest := make(map[MetricKind]HealthSample)
	for _, s := range samples {
		prev, ok := latest[s.Metric]
		if !ok || !s.Timestamp.Before(prev.Timestamp) {
			latest[s.Metric] = s
		}
	}
	for metric, s := range latest {
		snap.set(metric, s.Value)
	}
	return snap
}

func (m *MetricSnapshot) set(metric MetricKind, v float64) {
	switch metric {
	case MetricHeartRate:
		m.HeartRate = v
	case MetricSystolic:
		m.BloodPressure.Systolic = v
	case MetricDiastolic:
		m.BloodPressure.Diastolic = v
	case MetricOxygenSaturation:
		m.OxygenSaturation = v
	case MetricTemperature:
		m.Temperature = v
	case MetricSteps:
		m.Steps = v
	case MetricCalories:
		m.Calories = v
	case MetricSleepQuality:
		m.SleepQuality = v
	case MetricStressLevel:
		m.StressLevel = v
	default:
		return
	}
	if m.present == nil {
		m.present = make(map[MetricKind]bool)
	}
	m.present[metric] = true
}

// Value returns the snapshot value for a metric and whether it was sampled
func (m *MetricSnapshot) Value(metric MetricKind) (float64, bool) {
	if m == nil || !m.present[metric] {
		return 0, false
	}
	switch metric {
	case MetricHeartRate:
		return m.HeartRate, true
	case MetricSystolic:
		return m.BloodPressure.Systolic, true
	case MetricDiastolic:
		return m.BloodPressure.Diastolic, true
	case MetricOxygenSaturation:
		return m.OxygenSaturation, true
	case MetricTemperature:
		return m.Temperature, true
	case MetricSteps:
		return m.Steps, true
	case MetricCalories:
		return m.Calories, true
	case MetricSleepQuality:
		return m.SleepQuality, true
	case MetricStressLevel:
		return m.StressLevel, true
	}
	return 0, false
}

// Clone returns a deep copy of the snapshot
func (m *MetricSnapshot) Clone() *MetricSnapshot {
	if m == nil {
		return nil
	}
	c := *m
	c.RawSamples = append([]HealthSample(nil), m.RawSamples...)
	c.present = make(map[MetricKind]bool, len(m.present))
	for k, v := range m.present {
		c.present[k] = v
	}
	return &c
}

// Severity indicates how critical an anomaly or alert is
type Severity string

const (
	SeverityLow      Severity = "low"      // Informational
	SeverityMedium   Severity = "medium"   // Notable but not urgent
	SeverityHigh     Severity = "high"     // Should be addressed soon
	SeverityCritical Severity = "critical" // Requires immediate attention
)

// Rank orders severities; unknown values rank below low
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Escalate returns the next severity step, capped at critical
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh, SeverityCritical:
		return SeverityCritical
	}
	return SeverityLow
}

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// AnomalyType categorizes an anomaly by the signal family it was found in
type AnomalyType string

const (
	AnomalyHeartRate        AnomalyType = "heart_rate"
	AnomalyBloodPressure    AnomalyType = "blood_pressure"
	AnomalyOxygenSaturation AnomalyType = "oxygen_saturation"
	AnomalyTemperature      AnomalyType = "temperature"
	AnomalySleep            AnomalyType = "sleep"
	AnomalyStress           AnomalyType = "stress"
	AnomalyActivity         AnomalyType = "activity"
	AnomalyDataQuality      AnomalyType = "data_quality" // NaN or physically impossible reading
)

// AnomalyTypeFor maps a metric to its anomaly family
func AnomalyTypeFor(metric MetricKind) AnomalyType {
	switch metric {
	case MetricHeartRate:
		return AnomalyHeartRate
	case MetricSystolic, MetricDiastolic:
		return AnomalyBloodPressure
	case MetricOxygenSaturation:
		return AnomalyOxygenSaturation
	case MetricTemperature:
		return AnomalyTemperature
	case MetricSleepQuality:
		return AnomalySleep
	case MetricStressLevel:
		return AnomalyStress
	default:
		return AnomalyActivity
	}
}

// Range is a closed interval of expected values
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v lies within the range
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Distance returns how far v lies outside the range (0 when inside)
func (r Range) Distance(v float64) float64 {
	switch {
	case v < r.Low:
		return r.Low - v
	case v > r.High:
		return v - r.High
	}
	return 0
}

// Anomaly is a classified out-of-expected-range reading.
// Created by the detector and never mutated afterwards.
type Anomaly struct {
	ID            string      `json:"id"`
	Type          AnomalyType `json:"type"`
	Metric        MetricKind  `json:"metric"`
	Severity      Severity    `json:"severity"`
	Value         float64     `json:"value"`
	ExpectedRange Range       `json:"expected_range"`
	Description   string      `json:"description"`
	Timestamp     time.Time   `json:"timestamp"`
}

// AlertType categorizes where an alert originated
type AlertType string

const (
	AlertAnomaly   AlertType = "anomaly"
	AlertThreshold AlertType = "threshold"
	AlertDevice    AlertType = "device"
	AlertSystem    AlertType = "system"
)

// IsValid checks if the alert type value is valid
func (t AlertType) IsValid() bool {
	switch t {
	case AlertAnomaly, AlertThreshold, AlertDevice, AlertSystem:
		return true
	}
	return false
}

// Alert is a user-facing, acknowledgeable record.
// Acknowledged is the only mutable field and it never goes back to false.
type Alert struct {
	ID              string     `json:"id"`
	Type            AlertType  `json:"type"`
	Metric          MetricKind `json:"metric,omitempty"`
	Severity        Severity   `json:"severity"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	Timestamp       time.Time  `json:"timestamp"`
	Acknowledged    bool       `json:"acknowledged"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	SourceAnomalyID string     `json:"source_anomaly_id,omitempty"`
}

// HealthThresholds are the numeric bounds the alert manager checks snapshots against
type HealthThresholds struct {
	HeartRateMin        float64 `json:"heart_rate_min" yaml:"heart_rate_min"`
	HeartRateMax        float64 `json:"heart_rate_max" yaml:"heart_rate_max"`
	SystolicMax         float64 `json:"systolic_max" yaml:"systolic_max"`
	DiastolicMax        float64 `json:"diastolic_max" yaml:"diastolic_max"`
	OxygenSaturationMin float64 `json:"oxygen_saturation_min" yaml:"oxygen_saturation_min"`
	TemperatureMin      float64 `json:"temperature_min" yaml:"temperature_min"`
	TemperatureMax      float64 `json:"temperature_max" yaml:"temperature_max"`
}

// DefaultHealthThresholds returns adult resting thresholds
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		HeartRateMin:        50,
		HeartRateMax:        120,
		SystolicMax:         160,
		DiastolicMax:        100,
		OxygenSaturationMin: 92,
		TemperatureMin:      35.5,
		TemperatureMax:      38.5,
	}
}

// Validate checks that every bound is finite, positive and ordered
func (h HealthThresholds) Validate() error {
	values := map[string]float64{
		"heart_rate_min":        h.HeartRateMin,
		"heart_rate_max":        h.HeartRateMax,
		"systolic_max":          h.SystolicMax,
		"diastolic_max":         h.DiastolicMax,
		"oxygen_saturation_min": h.OxygenSaturationMin,
		"temperature_min":       h.TemperatureMin,
		"temperature_max":       h.TemperatureMax,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%s must be a positive number, got %v", name, v)
		}
	}
	if h.HeartRateMin >= h.HeartRateMax {
		return fmt.Errorf("heart_rate_min (%v) must be below heart_rate_max (%v)", h.HeartRateMin, h.HeartRateMax)
	}
	if h.DiastolicMax >= h.SystolicMax {
		return fmt.Errorf("diastolic_max (%v) must be below systolic_max (%v)", h.DiastolicMax, h.SystolicMax)
	}
	if h.OxygenSaturationMin > 100 {
		return fmt.Errorf("oxygen_saturation_min must be at most 100, got %v", h.OxygenSaturationMin)
	}
	if h.TemperatureMin >= h.TemperatureMax {
		return fmt.Errorf("temperature_min (%v) must be below temperature_max (%v)", h.TemperatureMin, h.TemperatureMax)
	}
	return nil
}

// TimeRange selects history entries by timestamp. Zero bounds are open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls within the range (inclusive)
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// LastN returns a range covering the trailing window ending now
func LastN(d time.Duration) TimeRange {
	return TimeRange{From: time.Now().Add(-d)}
}
