package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dalocar/tado-direct/internal/command"
	"github.com/dalocar/tado-direct/internal/engine"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
)

// ===== Health and Auth =====

// handleHealth returns service health: version, auth state, poll loop
// status, and the number of unresolved commands.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.core.PollStatuses()
	polls := make([]pollStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		polls = append(polls, pollStatusResponse{
			HomeID:          st.HomeID,
			LastSuccess:     st.LastSuccess,
			LastError:       st.LastError,
			IntervalSeconds: int(st.Interval / time.Second),
			BackedOff:       st.BackedOff,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"authorized":       s.core.Authorized(r.Context()),
		"pending_commands": s.core.PendingCommands(),
		"polls":            polls,
	})
}

type pollStatusResponse struct {
	HomeID          int64     `json:"home_id"`
	LastSuccess     time.Time `json:"last_success"`
	LastError       string    `json:"last_error,omitempty"`
	IntervalSeconds int       `json:"interval_seconds"`
	BackedOff       bool      `json:"backed_off"`
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authorized":      s.core.Authorized(r.Context()),
		"pending":         s.core.DeviceAuthPending(),
		"reauth_required": s.core.ReauthRequired(),
	})
}

// handleBeginDeviceAuth starts (or returns the in-flight) device
// authorization. The caller shows the user code and URI to the user; the
// engine completes the flow in the background.
func (s *Server) handleBeginDeviceAuth(w http.ResponseWriter, r *http.Request) {
	creds, err := s.core.BeginDeviceAuth(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "device authorization could not be started")
		s.logger.Warn("device authorization start failed", "error", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"user_code":                 creds.UserCode,
		"verification_uri":          creds.VerificationURI,
		"verification_uri_complete": creds.VerificationURIComplete,
		"interval_seconds":          int(creds.Interval / time.Second),
		"expires_at":                creds.ExpiresAt,
	})
}

// ===== Topology and State =====

type homeResponse struct {
	ID    int64          `json:"id"`
	Name  string         `json:"name"`
	TadoX bool           `json:"tado_x"`
	Zones []zoneResponse `json:"zones"`
}

type zoneResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request) {
	homes := s.core.Homes()
	out := make([]homeResponse, 0, len(homes))
	for _, h := range homes {
		hr := homeResponse{ID: h.ID, Name: h.Name, TadoX: h.TadoX, Zones: make([]zoneResponse, 0, len(h.Zones))}
		for _, z := range h.Zones {
			hr.Zones = append(hr.Zones, zoneResponse{ID: z.ID, Name: z.Name, Type: z.Type})
		}
		out = append(out, hr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"homes": out})
}

// handleHomeState returns the cached snapshot with optimistic patches
// applied. 404 before discovery, 503 before the first successful poll.
func (s *Server) handleHomeState(w http.ResponseWriter, r *http.Request) {
	homeID, ok := s.homeID(w, r)
	if !ok {
		return
	}

	snap, err := s.core.State(homeID)
	if err != nil {
		if errors.Is(err, state.ErrUnknownHome) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "no state cached yet for this home")
			return
		}
		writeInternalError(w, "reading cached state")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ===== Commands =====

// overlayRequest is the body for PUT zone overlay. Power defaults to ON
// with a required setpoint; power OFF needs no setpoint.
type overlayRequest struct {
	Power           string   `json:"power,omitempty"`
	Celsius         *float64 `json:"celsius,omitempty"`
	Termination     string   `json:"termination,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
}

func (s *Server) handleSetOverlay(w http.ResponseWriter, r *http.Request) {
	homeID, ok := s.homeID(w, r)
	if !ok {
		return
	}
	zoneID, err := strconv.Atoi(chi.URLParam(r, "zoneID"))
	if err != nil {
		writeBadRequest(w, "invalid zone ID")
		return
	}

	var req overlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	termination := req.Termination
	if termination == "" {
		termination = tado.TerminationManual
	}
	if termination == tado.TerminationTimer && req.DurationSeconds <= 0 {
		writeBadRequest(w, "duration_seconds is required for TIMER termination")
		return
	}

	var ticket *command.Ticket
	if req.Power == tado.PowerOff {
		ticket, err = s.core.SetZoneOff(r.Context(), homeID, zoneID, termination, req.DurationSeconds)
	} else {
		if req.Celsius == nil {
			writeBadRequest(w, "celsius is required unless power is OFF")
			return
		}
		ticket, err = s.core.SetZoneSetpoint(r.Context(), homeID, zoneID, *req.Celsius, termination, req.DurationSeconds)
	}
	s.writeCommandResult(w, ticket, err)
}

func (s *Server) handleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	homeID, ok := s.homeID(w, r)
	if !ok {
		return
	}
	zoneID, err := strconv.Atoi(chi.URLParam(r, "zoneID"))
	if err != nil {
		writeBadRequest(w, "invalid zone ID")
		return
	}

	ticket, err := s.core.ResumeSchedule(r.Context(), homeID, zoneID)
	s.writeCommandResult(w, ticket, err)
}

type presenceRequest struct {
	Presence string `json:"presence"`
}

func (s *Server) handleSetPresence(w http.ResponseWriter, r *http.Request) {
	homeID, ok := s.homeID(w, r)
	if !ok {
		return
	}

	var req presenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	switch req.Presence {
	case tado.PresenceHome, tado.PresenceAway, tado.PresenceAuto:
	default:
		writeBadRequest(w, "presence must be HOME, AWAY, or AUTO")
		return
	}

	ticket, err := s.core.SetPresence(r.Context(), homeID, req.Presence)
	s.writeCommandResult(w, ticket, err)
}

// meterReadingRequest submits an Energy IQ meter reading.
type meterReadingRequest struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Reading int    `json:"reading"`
}

func (s *Server) handleAddMeterReading(w http.ResponseWriter, r *http.Request) {
	homeID, ok := s.homeID(w, r)
	if !ok {
		return
	}

	var req meterReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		writeBadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	if req.Reading < 0 {
		writeBadRequest(w, "reading must not be negative")
		return
	}

	ticket, err := s.core.AddMeterReading(r.Context(), homeID, tado.MeterReading{
		Date:    req.Date,
		Reading: req.Reading,
	})
	s.writeCommandResult(w, ticket, err)
}

type childLockRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetChildLock(w http.ResponseWriter, r *http.Request) {
	homeID, ok := s.homeID(w, r)
	if !ok {
		return
	}
	serial := chi.URLParam(r, "serial")

	var req childLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ticket, err := s.core.SetChildLock(r.Context(), homeID, serial, req.Enabled)
	s.writeCommandResult(w, ticket, err)
}

type temperatureOffsetRequest struct {
	Celsius float64 `json:"celsius"`
}

func (s *Server) handleSetTemperatureOffset(w http.ResponseWriter, r *http.Request) {
	homeID, ok := s.homeID(w, r)
	if !ok {
		return
	}
	serial := chi.URLParam(r, "serial")

	var req temperatureOffsetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ticket, err := s.core.SetTemperatureOffset(r.Context(), homeID, serial, req.Celsius)
	s.writeCommandResult(w, ticket, err)
}

// ===== Helpers =====

// homeID parses the homeID URL parameter, writing a 400 on failure.
func (s *Server) homeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "homeID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid home ID")
		return 0, false
	}
	return id, true
}

// commandResponse reports a submitted command's ticket.
type commandResponse struct {
	CommandID string         `json:"command_id"`
	Status    command.Status `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// writeCommandResult maps a dispatcher submission to an HTTP response:
// 202 when acknowledged, 422 when the vendor rejected it, 502 when
// delivery failed, 404 for unknown homes.
func (s *Server) writeCommandResult(w http.ResponseWriter, ticket *command.Ticket, err error) {
	if err != nil && ticket == nil {
		if errors.Is(err, engine.ErrUnknownHome) {
			writeNotFound(w, "unknown home")
			return
		}
		writeInternalError(w, "submitting command")
		return
	}

	resp := commandResponse{CommandID: ticket.ID, Status: ticket.Status()}
	if terr := ticket.Err(); terr != nil {
		resp.Error = terr.Error()
	}

	switch ticket.Status() {
	case command.StatusRejected:
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case command.StatusFailed:
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}
