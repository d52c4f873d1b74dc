// Package api serves the monitor over HTTP and streams events to WebSocket clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gwebsocket "github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"github.com/denster32/HealthAI-2030-sub022/internal/config"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Monitor is the scheduler surface the API exposes
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
	State() types.MonitoringState
	Settings() config.MonitoringSettings
	Configure(ctx context.Context, settings config.MonitoringSettings) error
	GetCurrentHealthStatus(ctx context.Context) (*types.HealthStatus, error)
	GetHealthMetrics(r types.TimeRange) []*types.MetricSnapshot
	GetAnomalies(r types.TimeRange) []types.Anomaly
	GetAlerts(r types.TimeRange) []types.Alert
	AcknowledgeAlert(id string) error
	GetMonitoringStats() types.MonitoringStats
	ForceIntervention(ctx context.Context, kind types.InterventionKind) (*types.Intervention, error)
	ReportInterventionOutcome(id string, outcome types.InterventionOutcome) error
	GetInterventionStatus() types.AdaptationState
	InterventionHistory(limit int) []types.Intervention
}

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Served on localhost by default
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server holds the HTTP handlers
type Server struct {
	monitor        Monitor
	hub            *Hub
	logger         *slog.Logger
	requestTimeout time.Duration
}

// NewServer creates the API handlers. A nil hub disables /ws.
func NewServer(m Monitor, hub *Hub, logger *slog.Logger, requestTimeout time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Server{monitor: m, hub: hub, logger: logger, requestTimeout: requestTimeout}
}

// requestLogger logs each request through the server's slog logger
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("API: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

// Router builds the chi router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.hub != nil {
		r.Get("/ws", s.HandleWebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))

		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/alerts", s.handleAlerts)
		r.Post("/alerts/{id}/ack", s.handleAck)
		r.Get("/stats", s.handleStats)

		r.Get("/interventions", s.handleInterventions)
		r.Post("/interventions", s.handleForceIntervention)
		r.Post("/interventions/{id}/outcome", s.handleOutcome)

		r.Route("/monitoring", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
		})
	})

	return r
}

// ListenAndServe serves the router on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down api server: %w", err)
		}
		s.logger.Info("API: stopped")
		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.monitor.GetCurrentHealthStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tr, err := parseRange(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.GetHealthMetrics(tr))
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	tr, err := parseRange(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.GetAnomalies(tr))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	tr, err := parseRange(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	alerts := s.monitor.GetAlerts(tr)
	if r.URL.Query().Get("unacknowledged") == "true" {
		open := alerts[:0:0]
		for _, a := range alerts {
			if !a.Acknowledged {
				open = append(open, a)
			}
		}
		alerts = open
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.monitor.AcknowledgeAlert(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"acknowledged": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.GetMonitoringStats())
}

type interventionsResponse struct {
	Adaptation types.AdaptationState `json:"adaptation"`
	History    []types.Intervention  `json:"history"`
}

func (s *Server) handleInterventions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, badRequest("invalid limit %q", v))
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, interventionsResponse{
		Adaptation: s.monitor.GetInterventionStatus(),
		History:    s.monitor.InterventionHistory(limit),
	})
}

type forceRequest struct {
	Kind   types.InterventionKind `json:"kind"`
	Reason string                 `json:"reason"`
}

func (s *Server) handleForceIntervention(w http.ResponseWriter, r *http.Request) {
	var req forceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Kind == "" {
		s.writeError(w, badRequest("kind is required"))
		return
	}
	iv, err := s.monitor.ForceIntervention(r.Context(), req.Kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("API: intervention forced", "kind", req.Kind, "intervention_id", iv.ID, "reason", req.Reason)
	s.writeJSON(w, http.StatusCreated, iv)
}

type outcomeRequest struct {
	Outcome types.InterventionOutcome `json:"outcome"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if !req.Outcome.IsTerminal() {
		s.writeError(w, badRequest("outcome must be succeeded or failed, got %q", req.Outcome))
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.monitor.ReportInterventionOutcome(id, req.Outcome); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"intervention_id": id, "outcome": string(req.Outcome)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Start(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]types.MonitoringState{"state": s.monitor.State()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Stop(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]types.MonitoringState{"state": s.monitor.State()})
}

// handleGetSettings returns the settings as YAML, the same form PUT accepts
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeSettings(w, s.monitor.Settings())
}

// handlePutSettings decodes a partial YAML (or JSON) document over the current
// settings and applies the result
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, badRequest("failed to read body: %v", err))
		return
	}
	settings := s.monitor.Settings()
	if err := yaml.Unmarshal(body, &settings); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", types.ErrConfigurationInvalid, err))
		return
	}
	if err := s.monitor.Configure(r.Context(), settings); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("API: settings updated")
	s.writeSettings(w, s.monitor.Settings())
}

func (s *Server) writeSettings(w http.ResponseWriter, settings config.MonitoringSettings) {
	out, err := yaml.Marshal(settings)
	if err != nil {
		s.writeError(w, fmt.Errorf("failed to encode settings: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// HandleWebSocket upgrades the connection and registers the client with the hub
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("API: websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn)
	if !s.hub.RegisterClient(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	s.sendInitialStatus(client)
}

// sendInitialStatus gives a new client the current status without waiting
// for the next event
func (s *Server) sendInitialStatus(client *Client) {
	status, err := s.monitor.GetCurrentHealthStatus(context.Background())
	if err != nil {
		return
	}
	data, err := json.Marshal(Message{Type: "status", Payload: status})
	if err != nil {
		s.logger.Warn("API: failed to marshal initial status", "error", err)
		return
	}
	defer func() {
		// The hub may close Send concurrently when the client disconnects
		_ = recover()
	}()
	select {
	case client.Send <- data:
	default:
	}
}

type apiError struct {
	Error string `json:"error"`
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotMonitoring):
		return http.StatusConflict
	case errors.Is(err, types.ErrConfigurationInvalid), errors.Is(err, types.ErrUnknownIntervention):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAlertNotFound), errors.Is(err, types.ErrInterventionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("API: request failed", "error", err)
	}
	s.writeJSON(w, status, apiError{Error: err.Error()})
}

// writeJSON encodes before writing the header so an encoding failure can
// still be reported as a 500
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("API: failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(apiError{Error: "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// parseRange reads from/to (RFC 3339) or window (a duration such as 1h)
func parseRange(r *http.Request) (types.TimeRange, error) {
	q := r.URL.Query()
	var tr types.TimeRange
	if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return tr, badRequest("invalid window %q", v)
		}
		tr = types.LastN(d)
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return tr, badRequest("invalid from %q: %v", v, err)
		}
		tr.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return tr, badRequest("invalid to %q: %v", v, err)
		}
		tr.To = t
	}
	if !tr.From.IsZero() && !tr.To.IsZero() && tr.To.Before(tr.From) {
		return tr, badRequest("to is before from")
	}
	return tr, nil
}
