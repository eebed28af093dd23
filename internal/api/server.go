package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fitconnect/internal/calendar"
	"fitconnect/internal/clock"
	"fitconnect/internal/fitblocks"
	"fitconnect/internal/schedule"
	"fitconnect/internal/sensor"
)

// Server exposes the coordinator's cached schedule and the
// enroll/unenroll actions to the host over HTTP, plus a WebSocket push
// channel that fires whenever a new snapshot is published.
type Server struct {
	coordinator *schedule.Coordinator
	client      fitblocks.API
	view        *calendar.View
	clk         clock.Clock
	diagnostics func() any
	logger      *zap.Logger
	server      *http.Server

	upgrader  websocket.Upgrader
	wsMu      sync.Mutex
	wsClients map[*websocket.Conn]*sync.Mutex
}

// NewServer creates the API server. diagnostics is invoked per request
// to build the redacted export; it may be nil.
func NewServer(addr string, coordinator *schedule.Coordinator, client fitblocks.API, view *calendar.View, clk clock.Clock, diagnostics func() any, logger *zap.Logger) *Server {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	s := &Server{
		coordinator: coordinator,
		client:      client,
		view:        view,
		clk:         clk,
		diagnostics: diagnostics,
		logger:      logger,
		upgrader:    websocket.Upgrader{},
		wsClients:   make(map[*websocket.Conn]*sync.Mutex),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/schedule", s.handleSchedule)
	mux.HandleFunc("/api/calendar", s.handleCalendar)
	mux.HandleFunc("/api/sensors", s.handleSensors)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/services/enroll", s.handleEnroll)
	mux.HandleFunc("/api/services/unenroll", s.handleUnenroll)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	coordinator.Subscribe(s.broadcastUpdate)
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSchedule returns the coordinator's cached snapshot.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.coordinator.Snapshot()
	if snap == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no schedule fetched yet")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleCalendar returns booked events overlapping [start, end). The
// range parameters are RFC3339; both default to an open bound.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := s.clk.Now().UTC()
	start := now
	end := now.Add(7 * 24 * time.Hour)
	var err error
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid start parameter")
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid end parameter")
			return
		}
	}

	snap := s.coordinator.Snapshot()
	events := s.view.EventsBetween(snap, start, end)
	if events == nil {
		events = []calendar.Event{}
	}

	response := struct {
		Events  []calendar.Event `json:"events"`
		Current *calendar.Event  `json:"current_or_next,omitempty"`
	}{
		Events:  events,
		Current: s.view.CurrentOrNext(snap, now),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// SensorsResponse mirrors the sensor projections.
type SensorsResponse struct {
	Credits       *int            `json:"remaining_credits"`
	EnrolledCount int             `json:"enrolled_lessons"`
	Lessons       []sensor.Lesson `json:"upcoming_lessons"`
	LastRefresh   *time.Time      `json:"last_api_refresh,omitempty"`
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := s.clk.Now().UTC()
	snap := s.coordinator.Snapshot()
	response := SensorsResponse{
		Credits:       sensor.Credits(snap, now),
		EnrolledCount: sensor.EnrolledCount(snap, now),
		Lessons:       sensor.UpcomingLessons(snap, now),
	}
	if response.Lessons == nil {
		response.Lessons = []sensor.Lesson{}
	}
	if last := s.coordinator.LastRefresh(); !last.IsZero() {
		response.LastRefresh = &last
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.diagnostics == nil {
		s.writeError(w, http.StatusNotFound, "diagnostics not available")
		return
	}
	s.writeJSON(w, http.StatusOK, s.diagnostics())
}

// EnrollRequest is the body of POST /api/services/enroll.
type EnrollRequest struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ClassTypeID string    `json:"class_type_id"`
}

// UnenrollRequest is the body of POST /api/services/unenroll.
type UnenrollRequest struct {
	ScheduleRegistrationID string `json:"schedule_registration_id"`
	ClassTypeID            string `json:"class_type_id"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClassTypeID == "" {
		s.writeError(w, http.StatusBadRequest, "class_type_id is required")
		return
	}
	// Rejected before any network call.
	if !req.End.After(req.Start) {
		s.writeError(w, http.StatusBadRequest, "end time must be after start time")
		return
	}

	status, err := s.client.Enroll(r.Context(), req.Start, req.End, req.ClassTypeID)
	if err != nil {
		s.writeActionError(w, "enroll", err)
		return
	}
	s.logger.Info("Enroll succeeded", zap.String("status", status))

	s.requestRefresh()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UnenrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScheduleRegistrationID == "" || req.ClassTypeID == "" {
		s.writeError(w, http.StatusBadRequest,
			"schedule_registration_id and class_type_id are required")
		return
	}

	if err := s.client.Unenroll(r.Context(), req.ScheduleRegistrationID, req.ClassTypeID); err != nil {
		s.writeActionError(w, "unenroll", err)
		return
	}
	s.logger.Info("Unenroll succeeded",
		zap.String("schedule_registration_id", req.ScheduleRegistrationID))

	s.requestRefresh()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// writeActionError distinguishes authentication failures, which the
// user can act on, from generic request failures.
func (s *Server) writeActionError(w http.ResponseWriter, action string, err error) {
	var authErr *fitblocks.AuthError
	if errors.As(err, &authErr) {
		s.logger.Warn("Action authentication failed",
			zap.String("action", action), zap.Error(err))
		s.writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}
	s.logger.Warn("Action failed", zap.String("action", action), zap.Error(err))
	s.writeError(w, http.StatusBadGateway, "request failed")
}

// requestRefresh triggers an out-of-band coordinator refresh so the
// cached schedule reflects the action without waiting for the timer.
func (s *Server) requestRefresh() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.coordinator.Refresh(ctx); err != nil {
			s.logger.Warn("Post-action refresh failed", zap.Error(err))
		}
	}()
}

// UpdateMessage is pushed to every WebSocket client when the
// coordinator publishes a new snapshot.
type UpdateMessage struct {
	Type        string    `json:"type"`
	FetchedAt   time.Time `json:"fetched_at"`
	EventsCount int       `json:"events_count"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.wsMu.Lock()
	s.wsClients[conn] = &sync.Mutex{}
	count := len(s.wsClients)
	s.wsMu.Unlock()
	s.logger.Debug("WebSocket client connected",
		zap.String("remote_addr", r.RemoteAddr), zap.Int("clients", count))

	// Read loop only detects disconnects; clients do not send data.
	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.wsMu.Lock()
	delete(s.wsClients, conn)
	s.wsMu.Unlock()
	conn.Close()
}

// broadcastUpdate pushes a schedule-updated notification to every
// connected WebSocket client.
func (s *Server) broadcastUpdate(snap *schedule.Snapshot) {
	msg := UpdateMessage{
		Type:        "schedule_updated",
		FetchedAt:   snap.FetchedAt,
		EventsCount: len(snap.Events),
	}

	s.wsMu.Lock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(s.wsClients))
	for conn, mu := range s.wsClients {
		clients[conn] = mu
	}
	s.wsMu.Unlock()

	for conn, mu := range clients {
		mu.Lock()
		err := conn.WriteJSON(msg)
		mu.Unlock()
		if err != nil {
			s.logger.Debug("Dropping WebSocket client", zap.Error(err))
			s.removeClient(conn)
		}
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
