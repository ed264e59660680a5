package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/casa-core/internal/audit"
	"github.com/nerrad567/casa-core/internal/bus"
	"github.com/nerrad567/casa-core/internal/command"
	"github.com/nerrad567/casa-core/internal/device"
	"github.com/nerrad567/casa-core/internal/eventlog"
)

// DeviceView is a device as rendered by the dashboard.
type DeviceView struct {
	device.Device
	DisplayStatus string   `json:"display_status"`
	Active        bool     `json:"active"`
	ReadOnly      bool     `json:"read_only"`
	Commands      []string `json:"commands,omitempty"`
}

func viewOf(d device.Device) DeviceView {
	v := DeviceView{
		Device:        d,
		DisplayStatus: d.DisplayStatus(),
		Active:        d.Active(),
		ReadOnly:      d.ReadOnly(),
	}
	if !v.ReadOnly {
		v.Commands = d.Kind.Commands()
	}
	return v
}

func viewsOf(devices []device.Device) []DeviceView {
	views := make([]DeviceView, len(devices))
	for i, d := range devices {
		views[i] = viewOf(d)
	}
	return views
}

// SensorView adds the display strings for unknown values.
type SensorView struct {
	device.SensorReading
	TemperatureText string `json:"temperature_text"`
	HumidityText    string `json:"humidity_text"`
}

func sensorViewOf(r device.SensorReading) SensorView {
	return SensorView{
		SensorReading:   r,
		TemperatureText: r.TemperatureC.String(),
		HumidityText:    r.HumidityPct.String(),
	}
}

// CommandRequest is the body of POST /devices/{room}/{device}/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// handleState returns the full dashboard snapshot.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.core.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"connection": st.Connection,
		"devices":    viewsOf(st.Devices),
		"sensors":    sensorViewOf(st.Sensors),
		"stats":      s.core.Stats(),
	})
}

// handleListDevices returns every device in catalog order.
//
// Query parameters:
//   - room: filter by room (garagem, sala, quarto)
//   - pending: "true" to list only devices awaiting confirmation
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	room := device.Room(r.URL.Query().Get("room"))
	pendingOnly := r.URL.Query().Get("pending") == "true"

	devices := s.core.Devices()
	filtered := devices[:0]
	for _, d := range devices {
		if room != "" && d.Key.Room != room {
			continue
		}
		if pendingOnly && !d.Pending {
			continue
		}
		filtered = append(filtered, d)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": viewsOf(filtered),
		"count":   len(filtered),
	})
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	room := device.Room(chi.URLParam(r, "room"))
	name := chi.URLParam(r, "device")

	d, err := s.core.Device(room, name)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d))
}

// handleSensors returns the current sensor reading.
func (s *Server) handleSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sensorViewOf(s.core.Sensors()))
}

// handleConnection returns the bus connection status.
func (s *Server) handleConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Connection())
}

// handleConnect starts a connection attempt. The outcome arrives on the
// connection.state_changed channel, so the response is 202 Accepted.
func (s *Server) handleConnect(w http.ResponseWriter, _ *http.Request) {
	s.core.Connect()
	writeJSON(w, http.StatusAccepted, s.core.Connection())
}

// handleDisconnect closes the bus connection.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.core.Disconnect()
	writeJSON(w, http.StatusAccepted, s.core.Connection())
}

// handleCommand sends a command token to a device.
// This is an asynchronous operation: the device goes pending and the
// confirmed status arrives via WebSocket, so the response is 202 Accepted.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	room := device.Room(chi.URLParam(r, "room"))
	name := chi.URLParam(r, "device")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}

	err := s.core.IssueCommand(room, name, req.Command)
	switch {
	case err == nil:
	case errors.Is(err, bus.ErrNotConnected):
		writeError(w, http.StatusConflict, ErrCodeConflict, "MQTT not connected")
		return
	case errors.Is(err, command.ErrUnknownDevice):
		writeNotFound(w, "device not found")
		return
	case errors.Is(err, command.ErrReadOnlyDevice), errors.Is(err, command.ErrInvalidCommand):
		writeBadRequest(w, err.Error())
		return
	case errors.Is(err, command.ErrPublishFailed):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
		return
	default:
		s.logger.Error("command failed", "room", room, "device", name, "error", err)
		writeInternalError(w, "failed to send command")
		return
	}

	d, err := s.core.Device(room, name)
	if err != nil {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"command": req.Command,
		"device":  viewOf(d),
	})
}

// handleLogs returns the in-memory traffic log, newest first.
//
// Query parameters:
//   - category: info, success, error, sent or received
//   - limit: max entries (default: all, at most 50 exist)
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	category := eventlog.Category(q.Get("category"))
	if category != "" && !category.Valid() {
		writeBadRequest(w, "invalid category")
		return
	}
	limit, ok := parseNonNegative(q.Get("limit"))
	if !ok {
		writeBadRequest(w, "invalid limit")
		return
	}

	entries := s.core.Logs()
	out := make([]eventlog.Entry, 0, len(entries))
	for _, e := range entries {
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}

// handleAudit returns archived traffic with optional filters.
//
// Query parameters:
//   - category: info, success, error, sent or received
//   - since: RFC 3339 timestamp
//   - contains: message substring, e.g. a topic
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, ErrCodeDisabled, "traffic archive is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Category: eventlog.Category(q.Get("category")),
		Contains: q.Get("contains"),
	}
	if filter.Category != "" && !filter.Category.Valid() {
		writeBadRequest(w, "invalid category")
		return
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	var ok bool
	if filter.Limit, ok = parseNonNegative(q.Get("limit")); !ok {
		writeBadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, ok = parseNonNegative(q.Get("offset")); !ok {
		writeBadRequest(w, "invalid offset")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing traffic archive failed", "error", err)
		writeInternalError(w, "failed to list archived traffic")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseNonNegative parses an optional non-negative integer query value.
// An empty string is 0.
func parseNonNegative(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
