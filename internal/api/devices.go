package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// DeviceView is a device with its coordinator status. Status is nil for
// remotes, which are never polled.
type DeviceView struct {
	device.Device
	Status *coordinator.Info `json:"status,omitempty"`
}

func deviceView(e *coordinator.Entry) DeviceView {
	v := DeviceView{Device: e.Device}
	if e.Coordinator != nil {
		info := e.Coordinator.Status()
		v.Status = &info
	}
	return v
}

// handleListDevices returns all devices.
//
// Query parameters:
//   - kind: filter by kind (light, sensor, remote)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var entries []*coordinator.Entry
	switch kind := device.Kind(r.URL.Query().Get("kind")); kind {
	case "":
		entries = s.registry.Devices()
	case device.KindLight:
		entries = s.registry.Lights()
	case device.KindSensor:
		entries = s.registry.Sensors()
	case device.KindRemote:
		entries = s.registry.Remotes()
	default:
		writeBadRequest(w, "unknown kind: "+string(kind))
		return
	}

	devices := make([]DeviceView, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, deviceView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device with its coordinator status and
// cached snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, deviceView(e))
}

// handleRefreshDevice polls a device immediately and returns its status.
// A failed poll is reported with the vendor error; the cached snapshot is
// kept.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	c, err := s.registry.Coordinator(chi.URLParam(r, "id"))
	if err != nil {
		writeCommandError(w, err)
		return
	}

	if err := c.Refresh(r.Context()); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Status())
}

// handleDeviceCommand sends a raw vendor command to any device, including
// infrared remotes.
//
// Body: {"command":"turnOn","parameter":"default","commandType":"command"}
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd cloud.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Name == "" {
		writeBadRequest(w, "command is required")
		return
	}

	if err := s.registry.SendCommand(r.Context(), id, cmd); err != nil {
		s.logger.Warn("device command failed", "device_id", id, "command", cmd.Name, "error", err)
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"command":   cmd.Name,
		"status":    "accepted",
	})
}

// handleDeviceHistory returns recent entity states of a device, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 1000)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.registry.Get(id); !ok {
		writeNotFound(w, "device not found")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	if entries == nil {
		entries = []device.StateHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "history": entries, "count": len(entries)})
}

// decodeOptionalJSON decodes a body that may be empty.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
