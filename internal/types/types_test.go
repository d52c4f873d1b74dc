package types

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestMetricKindIsValid(t *testing.T) {
	for _, m := range AllMetrics() {
		if !m.IsValid() {
			t.Errorf("AllMetrics() returned invalid metric %q", m)
		}
	}
	if MetricKind("glucose").IsValid() {
		t.Error("expected unknown metric to be invalid")
	}
}

func TestSeverityOrdering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if !order[i].AtLeast(order[i-1]) {
			t.Errorf("%s should be at least %s", order[i], order[i-1])
		}
		if order[i-1].AtLeast(order[i]) {
			t.Errorf("%s should not be at least %s", order[i-1], order[i])
		}
	}
	if Severity("bogus").IsValid() {
		t.Error("expected unknown severity to be invalid")
	}
}

func TestSeverityEscalate(t *testing.T) {
	tests := []struct {
		in   Severity
		want Severity
	}{
		{SeverityLow, SeverityMedium},
		{SeverityMedium, SeverityHigh},
		{SeverityHigh, SeverityCritical},
		{SeverityCritical, SeverityCritical},
	}
	for _, tt := range tests {
		if got := tt.in.Escalate(); got != tt.want {
			t.Errorf("%s.Escalate() = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNewMetricSnapshotUsesLatestSample(t *testing.T) {
	now := time.Now()
	samples := []HealthSample{
		{Timestamp: now.Add(-2 * time.Minute), Metric: MetricHeartRate, Value: 70},
		{Timestamp: now, Metric: MetricHeartRate, Value: 88},
		{Timestamp: now.Add(-time.Minute), Metric: MetricHeartRate, Value: 75},
		{Timestamp: now, Metric: MetricSystolic, Value: 121},
		{Timestamp: now, Metric: MetricDiastolic, Value: 79},
	}

	snap := NewMetricSnapshot(samples, now)

	if snap.HeartRate != 88 {
		t.Errorf("heart rate = %v, want 88", snap.HeartRate)
	}
	if snap.BloodPressure.Systolic != 121 || snap.BloodPressure.Diastolic != 79 {
		t.Errorf("blood pressure = %+v, want 121/79", snap.BloodPressure)
	}
	if len(snap.RawSamples) != len(samples) {
		t.Errorf("raw samples = %d, want %d", len(snap.RawSamples), len(samples))
	}
	if _, ok := snap.Value(MetricTemperature); ok {
		t.Error("expected temperature to be absent")
	}
	if v, ok := snap.Value(MetricHeartRate); !ok || v != 88 {
		t.Errorf("Value(heart_rate) = %v, %v; want 88, true", v, ok)
	}
}

func TestMetricSnapshotCloneIsIndependent(t *testing.T) {
	now := time.Now()
	snap := NewMetricSnapshot([]HealthSample{{Timestamp: now, Metric: MetricHeartRate, Value: 80}}, now)
	clone := snap.Clone()
	clone.RawSamples[0].Value = 1

	if snap.RawSamples[0].Value != 80 {
		t.Error("mutating clone changed the original")
	}
	if v, ok := clone.Value(MetricHeartRate); !ok || v != 80 {
		t.Errorf("clone Value(heart_rate) = %v, %v", v, ok)
	}
}

func TestRangeDistance(t *testing.T) {
	r := Range{Low: 60, High: 100}
	tests := []struct {
		v    float64
		want float64
	}{
		{80, 0},
		{60, 0},
		{130, 30},
		{45, 15},
	}
	for _, tt := range tests {
		if got := r.Distance(tt.v); got != tt.want {
			t.Errorf("Distance(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestHealthThresholdsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*HealthThresholds)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*HealthThresholds) {}},
		{name: "inverted heart rate", mutate: func(h *HealthThresholds) { h.HeartRateMin = 130 }, wantErr: true},
		{name: "negative bound", mutate: func(h *HealthThresholds) { h.SystolicMax = -1 }, wantErr: true},
		{name: "NaN bound", mutate: func(h *HealthThresholds) { h.TemperatureMax = math.NaN() }, wantErr: true},
		{name: "oxygen above 100", mutate: func(h *HealthThresholds) { h.OxygenSaturationMin = 101 }, wantErr: true},
		{name: "diastolic above systolic", mutate: func(h *HealthThresholds) { h.DiastolicMax = 170 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DefaultHealthThresholds()
			tt.mutate(&h)
			err := h.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeRangeContains(t *testing.T) {
	now := time.Now()
	open := TimeRange{}
	if !open.Contains(now) {
		t.Error("open range should contain everything")
	}
	r := TimeRange{From: now.Add(-time.Minute), To: now}
	if !r.Contains(now.Add(-30 * time.Second)) {
		t.Error("expected point inside range")
	}
	if r.Contains(now.Add(time.Second)) {
		t.Error("expected point after range to be excluded")
	}
	if r.Contains(now.Add(-2 * time.Minute)) {
		t.Error("expected point before range to be excluded")
	}
}

func TestAdaptationStateSuccessRate(t *testing.T) {
	if rate := (AdaptationState{}).SuccessRate(); rate != 0 {
		t.Errorf("empty success rate = %v, want 0", rate)
	}
	s := AdaptationState{SuccessHistory: []bool{true, false, true, true}}
	if rate := s.SuccessRate(); rate != 0.75 {
		t.Errorf("success rate = %v, want 0.75", rate)
	}
}

func TestMetricSnapshotJSONKeepsPresence(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	snap := NewMetricSnapshot([]HealthSample{
		{Metric: MetricHeartRate, Value: 0, Timestamp: at},
	}, at)

	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded MetricSnapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded.Value(MetricHeartRate); !ok || v != 0 {
		t.Errorf("heart rate = %v, %v; want 0, true", v, ok)
	}
	if _, ok := decoded.Value(MetricTemperature); ok {
		t.Error("temperature was never sampled")
	}
}

func TestNonFiniteReadingsEncodeAsNull(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	samples := []HealthSample{
		{Metric: MetricHeartRate, Value: math.NaN(), Timestamp: at},
		{Metric: MetricSystolic, Value: math.Inf(1), Timestamp: at},
		{Metric: MetricTemperature, Value: 36.8, Timestamp: at},
	}
	snap := NewMetricSnapshot(samples, at)
	anomaly := Anomaly{ID: "an-1", Type: AnomalyDataQuality, Metric: MetricHeartRate, Severity: SeverityCritical, Value: math.NaN(), Timestamp: at}

	raw, err := json.Marshal(struct {
		Snapshot *MetricSnapshot `json:"snapshot"`
		Anomaly  Anomaly         `json:"anomaly"`
	}{snap, anomaly})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}
	if v, ok := generic["anomaly"]["value"]; !ok || v != nil {
		t.Errorf("anomaly value = %v, want null", v)
	}
	if v := generic["snapshot"]["heart_rate"]; v != nil {
		t.Errorf("heart_rate = %v, want null", v)
	}
	if v := generic["snapshot"]["temperature"]; v != 36.8 {
		t.Errorf("temperature = %v, want 36.8", v)
	}
	bp := generic["snapshot"]["blood_pressure"].(map[string]interface{})
	if bp["systolic"] != nil {
		t.Errorf("systolic = %v, want null", bp["systolic"])
	}

	var decoded struct {
		Snapshot MetricSnapshot `json:"snapshot"`
		Anomaly  Anomaly        `json:"anomaly"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !math.IsNaN(decoded.Anomaly.Value) || decoded.Anomaly.Severity != SeverityCritical {
		t.Errorf("anomaly = %+v, want NaN critical", decoded.Anomaly)
	}
	if v, ok := decoded.Snapshot.Value(MetricHeartRate); !ok || !math.IsNaN(v) {
		t.Errorf("heart rate = %v, %v; want NaN, true", v, ok)
	}
	if !math.IsNaN(decoded.Snapshot.RawSamples[1].Value) {
		t.Errorf("raw systolic = %v, want NaN", decoded.Snapshot.RawSamples[1].Value)
	}
	if v, _ := decoded.Snapshot.Value(MetricTemperature); v != 36.8 {
		t.Errorf("temperature = %v, want 36.8", v)
	}
}
