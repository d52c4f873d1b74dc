package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Monitor is the part of the scheduler the control socket drives
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
	State() types.MonitoringState
	GetCurrentHealthStatus(ctx context.Context) (*types.HealthStatus, error)
	GetMonitoringStats() types.MonitoringStats
	GetAlerts(r types.TimeRange) []types.Alert
	AcknowledgeAlert(id string) error
	ForceIntervention(ctx context.Context, kind types.InterventionKind) (*types.Intervention, error)
	ReportInterventionOutcome(id string, outcome types.InterventionOutcome) error
	GetInterventionStatus() types.AdaptationState
	InterventionHistory(limit int) []types.Intervention
	SuspendForeground()
	ResumeForeground()
	Suspended() bool
}

// historyLimit bounds the interventions returned by the interventions command
const historyLimit = 20

// NewHandler dispatches control commands to m
func NewHandler(m Monitor, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, cmd Command) (map[string]interface{}, error) {
		switch cmd.Type {
		case CommandStatus:
			status, err := m.GetCurrentHealthStatus(ctx)
			if err != nil {
				return nil, err
			}
			return wrap("status", status)

		case CommandStats:
			return wrap("stats", m.GetMonitoringStats())

		case CommandAlerts:
			var r types.TimeRange
			if cmd.Window != "" {
				window, err := time.ParseDuration(cmd.Window)
				if err != nil {
					return nil, fmt.Errorf("invalid window %q: %w", cmd.Window, err)
				}
				r = types.LastN(window)
			}
			alerts := m.GetAlerts(r)
			data, err := wrap("alerts", alerts)
			if err != nil {
				return nil, err
			}
			data["count"] = len(alerts)
			return data, nil

		case CommandAck:
			if cmd.AlertID == "" {
				return nil, fmt.Errorf("alert_id is required")
			}
			if err := m.AcknowledgeAlert(cmd.AlertID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"alert_id": cmd.AlertID}, nil

		case CommandIntervene:
			if cmd.Kind == "" {
				return nil, fmt.Errorf("kind is required")
			}
			iv, err := m.ForceIntervention(ctx, types.InterventionKind(cmd.Kind))
			if err != nil {
				return nil, err
			}
			logger.Info("Control: intervention forced", "kind", cmd.Kind, "intervention_id", iv.ID, "reason", cmd.Reason)
			return wrap("intervention", iv)

		case CommandOutcome:
			outcome := types.InterventionOutcome(cmd.Outcome)
			if cmd.InterventionID == "" {
				return nil, fmt.Errorf("intervention_id is required")
			}
			if err := m.ReportInterventionOutcome(cmd.InterventionID, outcome); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"intervention_id": cmd.InterventionID,
				"outcome":         string(outcome),
			}, nil

		case CommandInterventions:
			data, err := wrap("adaptation", m.GetInterventionStatus())
			if err != nil {
				return nil, err
			}
			history, err := toValue(m.InterventionHistory(historyLimit))
			if err != nil {
				return nil, err
			}
			data["history"] = history
			return data, nil

		case CommandSuspend:
			m.SuspendForeground()
			logger.Info("Control: foreground suspended", "reason", cmd.Reason)
			return map[string]interface{}{"suspended": m.Suspended()}, nil

		case CommandResume:
			m.ResumeForeground()
			return map[string]interface{}{"suspended": m.Suspended()}, nil

		case CommandStart:
			if err := m.Start(ctx); err != nil {
				return nil, err
			}
			return map[string]interface{}{"state": string(m.State())}, nil

		case CommandStop:
			if err := m.Stop(); err != nil {
				return nil, err
			}
			logger.Info("Control: monitoring stopped", "reason", cmd.Reason)
			return map[string]interface{}{"state": string(m.State())}, nil

		default:
			return nil, fmt.Errorf("unknown command type: %q", cmd.Type)
		}
	}
}

// wrap converts v to its JSON form under key
func wrap(key string, v interface{}) (map[string]interface{}, error) {
	value, err := toValue(v)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{key: value}, nil
}

func toValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return out, nil
}

// Decode converts a response data field back into a typed value
func Decode(data map[string]interface{}, key string, target interface{}) error {
	value, ok := data[key]
	if !ok {
		return fmt.Errorf("response has no %q field", key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
