package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends control commands to a running monitor
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new control client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command to the monitor and waits for the response
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to monitor (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	decoder := json.NewDecoder(conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &resp, nil
}

// Status requests the current health status
func (c *Client) Status() (*Response, error) {
	return c.SendCommand(Command{Type: CommandStatus})
}

// Stats requests the monitoring counters
func (c *Client) Stats() (*Response, error) {
	return c.SendCommand(Command{Type: CommandStats})
}

// Alerts requests alerts raised within window (all when empty)
func (c *Client) Alerts(window string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandAlerts, Window: window})
}

// Acknowledge acknowledges an alert
func (c *Client) Acknowledge(alertID string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandAck, AlertID: alertID})
}

// Intervene forces an intervention of the given kind
func (c *Client) Intervene(kind, reason string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandIntervene, Kind: kind, Reason: reason})
}

// ReportOutcome completes a pending intervention
func (c *Client) ReportOutcome(interventionID, outcome string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandOutcome, InterventionID: interventionID, Outcome: outcome})
}

// Interventions requests the adaptation state and recent interventions
func (c *Client) Interventions() (*Response, error) {
	return c.SendCommand(Command{Type: CommandInterventions})
}

// Suspend pauses the foreground cadences
func (c *Client) Suspend(reason string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandSuspend, Reason: reason})
}

// Resume resumes the foreground cadences
func (c *Client) Resume() (*Response, error) {
	return c.SendCommand(Command{Type: CommandResume})
}
