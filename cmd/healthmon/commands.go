package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denster32/HealthAI-2030-sub022/internal/config"
	"github.com/denster32/HealthAI-2030-sub022/internal/control"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// socketPath resolves the control socket: --socket/HEALTHMON_SOCKET, then the
// config file, then the default location
func socketPath() string {
	if socket := viper.GetString("socket"); socket != "" {
		return socket
	}
	if cfg, err := config.LoadFromFile(viper.GetString("config")); err == nil && cfg.Control.SocketPath != "" {
		return cfg.Control.SocketPath
	}
	return config.DefaultSocketPath()
}

// action runs one control command and renders its result. Shared by the
// cobra commands and the console.
type action func(c *control.Client, args []string) (string, error)

// check turns a transport error or an unsuccessful response into an error
func check(resp *control.Response, err error) (*control.Response, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to reach healthmon (is 'healthmon run' running?): %w", err)
	}
	if !resp.Success {
		if resp.Error != "" {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp, nil
}

func statusAction(c *control.Client, args []string) (string, error) {
	resp, err := check(c.Status())
	if err != nil {
		return "", err
	}
	var status types.HealthStatus
	if err := control.Decode(resp.Data, "status", &status); err != nil {
		return "", err
	}
	return formatStatus(&status), nil
}

func statsAction(c *control.Client, args []string) (string, error) {
	resp, err := check(c.Stats())
	if err != nil {
		return "", err
	}
	var stats types.MonitoringStats
	if err := control.Decode(resp.Data, "stats", &stats); err != nil {
		return "", err
	}
	return formatStats(stats), nil
}

func alertsAction(c *control.Client, args []string) (string, error) {
	window := ""
	if len(args) > 0 {
		window = args[0]
	}
	resp, err := check(c.Alerts(window))
	if err != nil {
		return "", err
	}
	var alerts []types.Alert
	if err := control.Decode(resp.Data, "alerts", &alerts); err != nil {
		return "", err
	}
	return formatAlerts(alerts), nil
}

func ackAction(c *control.Client, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: ack <alert-id>")
	}
	if _, err := check(c.Acknowledge(args[0])); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Alert acknowledged: %s\n", green("✓"), args[0]), nil
}

func interveneAction(c *control.Client, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("usage: intervene <kind> [reason]")
	}
	reason := ""
	if len(args) > 1 {
		reason = args[1]
	}
	resp, err := check(c.Intervene(args[0], reason))
	if err != nil {
		return "", err
	}
	var iv types.Intervention
	if err := control.Decode(resp.Data, "intervention", &iv); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Intervention started: %s\n  ID: %s\n  Report the result with: healthmon outcome %s succeeded|failed\n",
		green("✓"), iv.Kind, iv.ID, iv.ID), nil
}

func outcomeAction(c *control.Client, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("usage: outcome <intervention-id> succeeded|failed")
	}
	if _, err := check(c.ReportOutcome(args[0], args[1])); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Outcome recorded: %s %s\n", green("✓"), args[0], args[1]), nil
}

func interventionsAction(c *control.Client, args []string) (string, error) {
	resp, err := check(c.Interventions())
	if err != nil {
		return "", err
	}
	var state types.AdaptationState
	if err := control.Decode(resp.Data, "adaptation", &state); err != nil {
		return "", err
	}
	var history []types.Intervention
	if err := control.Decode(resp.Data, "history", &history); err != nil {
		return "", err
	}
	return formatInterventions(state, history), nil
}

func suspendAction(c *control.Client, args []string) (string, error) {
	reason := ""
	if len(args) > 0 {
		reason = args[0]
	}
	if _, err := check(c.Suspend(reason)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Foreground sampling suspended\n", yellow("⏸")), nil
}

func resumeAction(c *control.Client, args []string) (string, error) {
	if _, err := check(c.Resume()); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Foreground sampling resumed\n", green("▶")), nil
}

func lifecycleAction(kind string) action {
	return func(c *control.Client, args []string) (string, error) {
		cmd := control.Command{Type: kind}
		if len(args) > 0 {
			cmd.Reason = args[0]
		}
		resp, err := check(c.SendCommand(cmd))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Monitoring %v\n", resp.Data["state"]), nil
	}
}

// runAction adapts an action to a cobra Run function
func runAction(fn action) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		out, err := fn(control.NewClient(socketPath()), args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
			os.Exit(1)
		}
		fmt.Print(out)
	}
}

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show current metrics, anomalies, forecast and monitoring quality",
			Args:  cobra.NoArgs,
			Run:   runAction(statusAction),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show monitoring counters",
			Args:  cobra.NoArgs,
			Run:   runAction(statsAction),
		},
		&cobra.Command{
			Use:   "alerts [window]",
			Short: "List alerts, optionally only those within a window such as 1h",
			Args:  cobra.MaximumNArgs(1),
			Run:   runAction(alertsAction),
		},
		&cobra.Command{
			Use:   "ack <alert-id>",
			Short: "Acknowledge an alert",
			Args:  cobra.ExactArgs(1),
			Run:   runAction(ackAction),
		},
		&cobra.Command{
			Use:   "intervene <kind> [reason]",
			Short: "Force an intervention, bypassing the cooldown",
			Long: `Force an intervention of the given kind. Known kinds:
  breathing_exercise, hydration_reminder, activity_break, rest_prompt,
  guided_recovery, care_team_contact`,
			Args: cobra.RangeArgs(1, 2),
			Run:  runAction(interveneAction),
		},
		&cobra.Command{
			Use:   "outcome <intervention-id> succeeded|failed",
			Short: "Report how an intervention went",
			Args:  cobra.ExactArgs(2),
			Run:   runAction(outcomeAction),
		},
		&cobra.Command{
			Use:   "interventions",
			Short: "Show the adaptation level and recent interventions",
			Args:  cobra.NoArgs,
			Run:   runAction(interventionsAction),
		},
		&cobra.Command{
			Use:   "suspend [reason]",
			Short: "Pause foreground sampling; background tasks keep running",
			Args:  cobra.MaximumNArgs(1),
			Run:   runAction(suspendAction),
		},
		&cobra.Command{
			Use:   "resume",
			Short: "Resume foreground sampling",
			Args:  cobra.NoArgs,
			Run:   runAction(resumeAction),
		},
		&cobra.Command{
			Use:   "start",
			Short: "Start monitoring in a running daemon",
			Args:  cobra.NoArgs,
			Run:   runAction(lifecycleAction(control.CommandStart)),
		},
		&cobra.Command{
			Use:   "stop [reason]",
			Short: "Stop monitoring without stopping the daemon",
			Args:  cobra.MaximumNArgs(1),
			Run:   runAction(lifecycleAction(control.CommandStop)),
		},
	)
}
