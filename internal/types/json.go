package types

import (
	"encoding/json"
	"math"
)

// Readings may be NaN or infinite (the detector reports those as data quality
// anomalies). encoding/json rejects such values, so every reading-carrying type
// encodes them as null and decodes null back to NaN.

// FiniteOrNull returns nil for NaN and ±Inf, otherwise a pointer to v
func FiniteOrNull(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NullAsNaN is the decoding counterpart of FiniteOrNull
func NullAsNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// MarshalJSON encodes a non-finite value as null
func (s HealthSample) MarshalJSON() ([]byte, error) {
	type plain HealthSample
	return json.Marshal(struct {
		plain
		Value *float64 `json:"value"`
	}{plain(s), FiniteOrNull(s.Value)})
}

// UnmarshalJSON decodes a null value as NaN
func (s *HealthSample) UnmarshalJSON(data []byte) error {
	type plain HealthSample
	aux := struct {
		*plain
		Value *float64 `json:"value"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Value = NullAsNaN(aux.Value)
	return nil
}

// MarshalJSON encodes non-finite pressures as null
func (b BloodPressure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Systolic  *float64 `json:"systolic"`
		Diastolic *float64 `json:"diastolic"`
	}{FiniteOrNull(b.Systolic), FiniteOrNull(b.Diastolic)})
}

// UnmarshalJSON decodes null pressures as NaN
func (b *BloodPressure) UnmarshalJSON(data []byte) error {
	var aux struct {
		Systolic  *float64 `json:"systolic"`
		Diastolic *float64 `json:"diastolic"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.Systolic = NullAsNaN(aux.Systolic)
	b.Diastolic = NullAsNaN(aux.Diastolic)
	return nil
}

type plainSnapshot MetricSnapshot

// snapshotJSON shadows the metric fields of MetricSnapshot with nullable ones
type snapshotJSON struct {
	plainSnapshot
	HeartRate        *float64 `json:"heart_rate"`
	OxygenSaturation *float64 `json:"oxygen_saturation"`
	Temperature      *float64 `json:"temperature"`
	Steps            *float64 `json:"steps"`
	Calories         *float64 `json:"calories"`
	SleepQuality     *float64 `json:"sleep_quality"`
	StressLevel      *float64 `json:"stress_level"`
}

// MarshalJSON encodes non-finite metric values as null
func (m MetricSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		plainSnapshot:    plainSnapshot(m),
		HeartRate:        FiniteOrNull(m.HeartRate),
		OxygenSaturation: FiniteOrNull(m.OxygenSaturation),
		Temperature:      FiniteOrNull(m.Temperature),
		Steps:            FiniteOrNull(m.Steps),
		Calories:         FiniteOrNull(m.Calories),
		SleepQuality:     FiniteOrNull(m.SleepQuality),
		StressLevel:      FiniteOrNull(m.StressLevel),
	})
}

// UnmarshalJSON decodes null metric values as NaN and restores which metrics
// were sampled from the raw samples
func (m *MetricSnapshot) UnmarshalJSON(data []byte) error {
	var aux snapshotJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = MetricSnapshot(aux.plainSnapshot)
	m.HeartRate = NullAsNaN(aux.HeartRate)
	m.OxygenSaturation = NullAsNaN(aux.OxygenSaturation)
	m.Temperature = NullAsNaN(aux.Temperature)
	m.Steps = NullAsNaN(aux.Steps)
	m.Calories = NullAsNaN(aux.Calories)
	m.SleepQuality = NullAsNaN(aux.SleepQuality)
	m.StressLevel = NullAsNaN(aux.StressLevel)

	m.present = make(map[MetricKind]bool)
	for _, s := range m.RawSamples {
		if s.Metric.IsValid() {
			m.present[s.Metric] = true
		}
	}
	return nil
}

// MarshalJSON encodes a non-finite value as null
func (a Anomaly) MarshalJSON() ([]byte, error) {
	type plain Anomaly
	return json.Marshal(struct {
		plain
		Value *float64 `json:"value"`
	}{plain(a), FiniteOrNull(a.Value)})
}

// UnmarshalJSON decodes a null value as NaN
func (a *Anomaly) UnmarshalJSON(data []byte) error {
	type plain Anomaly
	aux := struct {
		*plain
		Value *float64 `json:"value"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Value = NullAsNaN(aux.Value)
	return nil
}
