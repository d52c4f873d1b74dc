package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Command types understood by the monitor
const (
	CommandStatus        = "status"
	CommandStats         = "stats"
	CommandAlerts        = "alerts"
	CommandAck           = "ack"
	CommandIntervene     = "intervene"
	CommandOutcome       = "outcome"
	CommandInterventions = "interventions"
	CommandSuspend       = "suspend"
	CommandResume        = "resume"
	CommandStart         = "start"
	CommandStop          = "stop"
)

// Command represents a control command sent to a running monitor
type Command struct {
	Type           string                 `json:"type"`                      // One of the Command* constants
	AlertID        string                 `json:"alert_id,omitempty"`        // Target alert (ack)
	InterventionID string                 `json:"intervention_id,omitempty"` // Target intervention (outcome)
	Kind           string                 `json:"kind,omitempty"`            // Intervention kind (intervene)
	Outcome        string                 `json:"outcome,omitempty"`         // succeeded or failed (outcome)
	Window         string                 `json:"window,omitempty"`          // Lookback such as "1h" (alerts)
	Reason         string                 `json:"reason,omitempty"`          // Optional reason, logged
	Timestamp      time.Time              `json:"timestamp"`                 // When command was sent
	Metadata       map[string]interface{} `json:"metadata,omitempty"`        // Additional metadata
}

// Response represents a response to a control command
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Handler executes a decoded command and returns response data
type Handler func(ctx context.Context, cmd Command) (map[string]interface{}, error)

// Server manages the control socket of a running monitor
type Server struct {
	socketPath string
	listener   net.Listener
	logger     *slog.Logger
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}

	onCommand Handler
}

// NewServer creates a new control server.
// socketPath should be something like /tmp/healthmon.sock
func NewServer(socketPath string, onCommand Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove a socket left behind by a crashed instance
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		onCommand:  onCommand,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening for control commands
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Control: listening", "socket", s.socketPath)

	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Accept timeout lets the loop notice stop
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Warn("Control: failed to set deadline", "error", err)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Control: accept error", "error", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

// handleConnection processes a single control connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Read deadline keeps a silent client from holding the connection
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.logger.Warn("Control: failed to set read deadline", "error", err)
		return
	}

	decoder := json.NewDecoder(conn)
	var cmd Command
	if err := decoder.Decode(&cmd); err != nil {
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}

	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	s.logger.Debug("Control: command received", "type", cmd.Type, "reason", cmd.Reason)

	var resp Response
	if s.onCommand != nil {
		data, err := s.onCommand(ctx, cmd)
		if err != nil {
			resp = Response{
				Success: false,
				Message: fmt.Sprintf("Command failed: %v", err),
				Error:   err.Error(),
			}
		} else {
			resp = Response{
				Success: true,
				Message: fmt.Sprintf("Command '%s' completed successfully", cmd.Type),
				Data:    data,
			}
		}
	} else {
		resp = Response{
			Success: false,
			Message: "No command handler registered",
			Error:   "server misconfiguration",
		}
	}

	if err := s.sendResponse(conn, resp); err != nil {
		s.logger.Warn("Control: failed to send response", "type", cmd.Type, "error", err)
	}
}

// sendError sends an error response to the client
func (s *Server) sendError(conn net.Conn, message string) {
	resp := Response{
		Success: false,
		Message: message,
		Error:   message,
	}
	_ = s.sendResponse(conn, resp) // Ignore errors on error path
}

// sendResponse sends a response to the client
func (s *Server) sendResponse(conn net.Conn, resp Response) error {
	encoder := json.NewEncoder(conn)
	return encoder.Encode(resp)
}

// Stop stops the control server and removes the socket file
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	// Closing the listener unblocks Accept
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Control: error closing listener", "error", err)
		}
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Control: timeout waiting for server shutdown")
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.logger.Warn("Control: failed to remove socket file", "error", err)
	}

	s.logger.Info("Control: stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
