package types

import "errors"

// Error taxonomy shared by every monitoring component. Callers compare with errors.Is;
// components wrap these with context using fmt.Errorf("...: %w", err).
var (
	// ErrNotMonitoring is returned when an operation needs an active scheduler
	ErrNotMonitoring = errors.New("monitoring is not active")

	// ErrStageUnavailable is returned when a required component is missing at construction
	ErrStageUnavailable = errors.New("monitoring stage unavailable")

	// ErrDataSourceTimeout is returned when the health data source misses its deadline
	ErrDataSourceTimeout = errors.New("health data source timed out")

	// ErrBackgroundTaskFailed is returned when a background task exhausts its retries
	ErrBackgroundTaskFailed = errors.New("background task failed")

	// ErrConfigurationInvalid is returned by configure for bad thresholds or intervals
	ErrConfigurationInvalid = errors.New("invalid monitoring configuration")

	// ErrAlertNotFound is returned when acknowledging an unknown alert id
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInterventionNotFound is returned when reporting an outcome for an unknown intervention
	ErrInterventionNotFound = errors.New("intervention not found")

	// ErrUnknownIntervention is returned when forcing a kind that is not in the catalog
	ErrUnknownIntervention = errors.New("unknown intervention kind")
)
