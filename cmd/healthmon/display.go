package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func severityColor(s types.Severity) func(a ...interface{}) string {
	switch s {
	case types.SeverityCritical, types.SeverityHigh:
		return red
	case types.SeverityMedium:
		return yellow
	default:
		return gray
	}
}

func qualityColor(q types.MonitoringQuality) func(a ...interface{}) string {
	switch q {
	case types.QualityExcellent, types.QualityGood:
		return green
	case types.QualityFair:
		return yellow
	default:
		return red
	}
}

var metricUnits = map[types.MetricKind]string{
	types.MetricHeartRate:        "bpm",
	types.MetricSystolic:         "mmHg",
	types.MetricDiastolic:        "mmHg",
	types.MetricOxygenSaturation: "%",
	types.MetricTemperature:      "°C",
	types.MetricSteps:            "steps",
	types.MetricCalories:         "kcal",
}

func formatValue(metric types.MetricKind, v float64) string {
	if unit, ok := metricUnits[metric]; ok {
		return fmt.Sprintf("%.1f %s", v, unit)
	}
	return fmt.Sprintf("%.1f", v)
}

func formatStatus(status *types.HealthStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", cyan("=== Health Status ==="))
	fmt.Fprintf(&b, "State:    %s\n", status.State)
	q := status.Quality
	devices := "unknown"
	if q.ConnectedDevices >= 0 {
		devices = fmt.Sprintf("%d", q.ConnectedDevices)
	}
	fmt.Fprintf(&b, "Quality:  %s (density %.0f%%, devices %s)\n",
		qualityColor(q.Level)(string(q.Level)), q.SampleDensity*100, devices)

	fmt.Fprintf(&b, "\n%s\n", yellow("Metrics:"))
	printed := 0
	if status.Metrics != nil {
		for _, metric := range types.AllMetrics() {
			v, ok := status.Metrics.Value(metric)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %-20s %s\n", metric, formatValue(metric, v))
			printed++
		}
	}
	if printed == 0 {
		fmt.Fprintf(&b, "  %s\n", gray("No samples yet"))
	}

	if len(status.Anomalies) > 0 {
		fmt.Fprintf(&b, "\n%s\n", yellow("Recent anomalies:"))
		for _, a := range status.Anomalies {
			sev := severityColor(a.Severity)
			fmt.Fprintf(&b, "  %s %-20s %s  %s\n", sev("●"), a.Metric, formatValue(a.Metric, a.Value), gray(a.Timestamp.Format(time.Kitchen)))
		}
	}

	if f := status.Forecast; f != nil {
		fmt.Fprintf(&b, "\n%s (next %v, risk %.2f)\n", yellow("Forecast"), f.Horizon, f.RiskScore)
		metrics := make([]string, 0, len(f.Predictions))
		for m := range f.Predictions {
			metrics = append(metrics, string(m))
		}
		sort.Strings(metrics)
		for _, m := range metrics {
			metric := types.MetricKind(m)
			fmt.Fprintf(&b, "  %-20s %s\n", metric, formatValue(metric, f.Predictions[metric]))
		}
	}
	return b.String()
}

func formatAlerts(alerts []types.Alert) string {
	if len(alerts) == 0 {
		return gray("No alerts") + "\n"
	}
	var b strings.Builder
	for _, a := range alerts {
		mark := " "
		if a.Acknowledged {
			mark = green("✓")
		}
		fmt.Fprintf(&b, "%s %s %-8s %s\n", mark, severityColor(a.Severity)("●"), a.Severity, a.Title)
		fmt.Fprintf(&b, "    %s  %s\n", gray(a.ID), gray(a.Timestamp.Format(time.RFC3339)))
		if a.Message != "" {
			fmt.Fprintf(&b, "    %s\n", a.Message)
		}
	}
	return b.String()
}

func formatStats(s types.MonitoringStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", cyan("=== Monitoring Stats ==="))
	fmt.Fprintf(&b, "Samples collected:     %d\n", s.SamplesCollected)
	fmt.Fprintf(&b, "Anomalies detected:    %d\n", s.AnomaliesDetected)
	fmt.Fprintf(&b, "Alerts triggered:      %d\n", s.AlertsTriggered)
	fmt.Fprintf(&b, "Interventions started: %d\n", s.InterventionsStarted)

	errs := fmt.Sprintf("%d", s.TotalErrors())
	if s.TotalErrors() > 0 {
		errs = red(errs)
	}
	fmt.Fprintf(&b, "Errors:                %s (sampling %d, detection %d, alerts %d, background %d)\n",
		errs, s.SamplingErrors, s.DetectionErrors, s.AlertErrors, s.BackgroundErrors)
	if !s.LastUpdateTime.IsZero() {
		fmt.Fprintf(&b, "Last update:           %s\n", s.LastUpdateTime.Format(time.RFC3339))
	}
	return b.String()
}

func formatInterventions(state types.AdaptationState, history []types.Intervention) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", cyan("=== Interventions ==="))
	fmt.Fprintf(&b, "Adaptation level: %.2f\n", state.AdaptationLevel)
	fmt.Fprintf(&b, "Success rate:     %.0f%% of %d\n", state.SuccessRate()*100, len(state.SuccessHistory))

	if len(state.ActiveInterventions) > 0 {
		fmt.Fprintf(&b, "\n%s\n", yellow("Active:"))
		for _, iv := range state.ActiveInterventions {
			fmt.Fprintf(&b, "  %s %-20s %s\n", yellow("○"), iv.Kind, gray(iv.ID))
		}
	}
	if len(history) > 0 {
		fmt.Fprintf(&b, "\n%s\n", yellow("History:"))
		for _, iv := range history {
			icon := gray("○")
			switch iv.Outcome {
			case types.OutcomeSucceeded:
				icon = green("✓")
			case types.OutcomeFailed:
				icon = red("✗")
			}
			forced := ""
			if iv.Forced {
				forced = gray(" (forced)")
			}
			fmt.Fprintf(&b, "  %s %-20s %s%s\n", icon, iv.Kind, iv.Outcome, forced)
		}
	}
	return b.String()
}
