package intervention

import (
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Intervention kinds in the default catalog
const (
	KindBreathingExercise types.InterventionKind = "breathing_exercise"
	KindHydrationReminder types.InterventionKind = "hydration_reminder"
	KindActivityBreak     types.InterventionKind = "activity_break"
	KindRestPrompt        types.InterventionKind = "rest_prompt"
	KindGuidedRecovery    types.InterventionKind = "guided_recovery"
	KindCareTeamContact   types.InterventionKind = "care_team_contact"
)

// MetricGroup clusters metrics that the same interventions address
type MetricGroup string

const (
	GroupHeart       MetricGroup = "heart"
	GroupOxygen      MetricGroup = "oxygen"
	GroupTemperature MetricGroup = "temperature"
	GroupActivity    MetricGroup = "activity"
	GroupSleep       MetricGroup = "sleep"
	GroupStress      MetricGroup = "stress"
	// GroupAny matches every alert, including system alerts without a metric
	GroupAny MetricGroup = "any"
)

// GroupFor maps a metric to its group. Unknown or empty metrics map to GroupAny.
func GroupFor(metric types.MetricKind) MetricGroup {
	switch metric {
	case types.MetricHeartRate, types.MetricSystolic, types.MetricDiastolic:
		return GroupHeart
	case types.MetricOxygenSaturation:
		return GroupOxygen
	case types.MetricTemperature:
		return GroupTemperature
	case types.MetricSteps, types.MetricCalories:
		return GroupActivity
	case types.MetricSleepQuality:
		return GroupSleep
	case types.MetricStressLevel:
		return GroupStress
	}
	return GroupAny
}

// CatalogEntry describes one intervention the engine can select
type CatalogEntry struct {
	Kind types.InterventionKind
	// TargetSeverity is the alert severity this intervention is sized for
	TargetSeverity types.Severity
	// Groups lists the metric groups it addresses
	Groups      []MetricGroup
	Description string
}

// Matches reports whether the entry addresses the given group
func (e CatalogEntry) Matches(group MetricGroup) bool {
	for _, g := range e.Groups {
		if g == GroupAny || g == group {
			return true
		}
	}
	return false
}

// DefaultCatalog returns the built-in interventions, least to most severe
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Kind:           KindBreathingExercise,
			TargetSeverity: types.SeverityLow,
			Groups:         []MetricGroup{GroupStress, GroupHeart},
			Description:    "Two minutes of paced breathing",
		},
		{
			Kind:           KindHydrationReminder,
			TargetSeverity: types.SeverityLow,
			Groups:         []MetricGroup{GroupTemperature},
			Description:    "Drink water and move somewhere cooler",
		},
		{
			Kind:           KindActivityBreak,
			TargetSeverity: types.SeverityMedium,
			Groups:         []MetricGroup{GroupActivity, GroupStress, GroupHeart},
			Description:    "Stand up and take a short walk",
		},
		{
			Kind:           KindRestPrompt,
			TargetSeverity: types.SeverityMedium,
			Groups:         []MetricGroup{GroupAny},
			Description:    "Sit down and rest for fifteen minutes",
		},
		{
			Kind:           KindGuidedRecovery,
			TargetSeverity: types.SeverityHigh,
			Groups:         []MetricGroup{GroupAny},
			Description:    "Guided recovery session with re-measurement",
		},
		{
			Kind:           KindCareTeamContact,
			TargetSeverity: types.SeverityCritical,
			Groups:         []MetricGroup{GroupAny},
			Description:    "Contact the care team",
		},
	}
}
