package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
)

// commandSource tags commands issued through the REST API.
const commandSource = "api"

// commandRequest is the request body for POST /devices/{id}/command.
type commandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Devices()
	if devices == nil {
		devices = []blebox.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.devices.Device(id)
	if err != nil {
		if errors.Is(err, blebox.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.devices.Remove(id); err != nil {
		if errors.Is(err, blebox.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to remove device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceCommand runs a control, refresh or remove and returns the ack.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	cmd := blebox.CommandMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		DeviceID:  chi.URLParam(r, "id"),
		Command:   req.Command,
		Args:      req.Args,
		Source:    commandSource,
	}
	ack := s.devices.Execute(r.Context(), cmd)
	writeJSON(w, ackStatusCode(ack), ack)
}

// ackStatusCode maps an acknowledgment to an HTTP status.
func ackStatusCode(ack blebox.AckMessage) int {
	if ack.Error == nil {
		return http.StatusOK
	}
	switch ack.Error.Code {
	case blebox.ErrCodeNotConfigured:
		return http.StatusNotFound
	case blebox.ErrCodeInvalidCommand:
		return http.StatusBadRequest
	case blebox.ErrCodeSuperseded:
		return http.StatusConflict
	case blebox.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case blebox.ErrCodeDeviceUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetScan(w http.ResponseWriter, _ *http.Request) {
	stats := s.devices.LastSweep()
	var last *blebox.SweepStats
	if !stats.StartedAt.IsZero() {
		last = &stats
	}
	writeJSON(w, http.StatusOK, map[string]any{"last_sweep": last})
}

func (s *Server) handleStartScan(w http.ResponseWriter, _ *http.Request) {
	switch err := s.devices.Scan(); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, blebox.ErrScanDisabled):
		writeError(w, http.StatusConflict, ErrCodeScanDisabled, "scanning is disabled")
	case errors.Is(err, blebox.ErrSweepRunning):
		writeError(w, http.StatusConflict, ErrCodeConflict, "a sweep is already running")
	default:
		writeInternalError(w, "failed to start sweep")
	}
}
