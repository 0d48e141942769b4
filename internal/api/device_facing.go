package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/events"
	"github.com/nerrad567/feeder-core/internal/feeding"
	"github.com/nerrad567/feeder-core/internal/schedule"
)

// Headers a feeder may use instead of the mac query parameter.
const (
	headerDeviceMac    = "X-Device-Mac"
	headerDeviceSerial = "X-Device-Serial"
)

// deviceIdentifier returns the raw serial from ?mac=, X-Device-Mac or
// X-Device-Serial, in that order.
func deviceIdentifier(r *http.Request) string {
	for _, v := range []string{
		r.URL.Query().Get("mac"),
		r.Header.Get(headerDeviceMac),
		r.Header.Get(headerDeviceSerial),
	} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// feedCheckResponse is the body of GET /feed/check. Field names follow
// the firmware.
type feedCheckResponse struct {
	ShouldFeed   bool   `json:"shouldFeed"`
	Mac          string `json:"mac"`
	DeviceID     int64  `json:"deviceId,omitempty"`
	DeviceName   string `json:"deviceName,omitempty"`
	CurrentTime  string `json:"currentTime"`
	Reason       string `json:"reason,omitempty"`
	ScheduleID   int64  `json:"scheduleId,omitempty"`
	ScheduleName string `json:"scheduleName,omitempty"`
	Amount       int    `json:"amount,omitempty"`
	DurationMs   int    `json:"durationMs,omitempty"`
	Message      string `json:"message"`
}

func newFeedCheckResponse(d *feeding.Decision) feedCheckResponse {
	resp := feedCheckResponse{
		ShouldFeed:  d.ShouldFeed,
		Mac:         d.Serial,
		DeviceID:    d.DeviceID,
		DeviceName:  d.DeviceName,
		CurrentTime: d.CurrentTime.String(),
		Reason:      string(d.Reason),
		Message:     d.Message(),
	}
	if d.ShouldFeed {
		resp.ScheduleID = d.ScheduleID
		resp.ScheduleName = d.ScheduleName
		resp.Amount = d.Amount
		resp.DurationMs = d.DurationMs
	}
	return resp
}

// handleFeedCheck runs the decision engine for a polling feeder.
//
// Bad input is a 400 and a storage failure a 500; both carry
// shouldFeed=false so a confused device never dispenses.
func (s *Server) handleFeedCheck(w http.ResponseWriter, r *http.Request) {
	raw := deviceIdentifier(r)
	offset := 0
	if v := r.URL.Query().Get("tzOffsetMin"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, feedCheckResponse{Mac: raw, Message: "tzOffsetMin must be an integer"})
			return
		}
		offset = n
	}
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, feedCheckResponse{Message: "mac is required"})
		return
	}

	decision, err := s.engine.Decide(r.Context(), raw, s.now(), offset)
	switch {
	case errors.Is(err, device.ErrInvalidSerial), errors.Is(err, feeding.ErrInvalidOffset):
		resp := newFeedCheckResponse(decision)
		resp.ShouldFeed = false
		resp.Message = err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
	case err != nil:
		s.logger.Error("feed check failed", "serial", decision.Serial, "error", err)
		resp := newFeedCheckResponse(decision)
		resp.ShouldFeed = false
		resp.Message = "internal error"
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		writeJSON(w, http.StatusOK, newFeedCheckResponse(decision))
	}
}

// handleLogIngest stores a log line sent by a feeder.
func (s *Server) handleLogIngest(w http.ResponseWriter, r *http.Request) {
	raw := deviceIdentifier(r)
	if raw == "" {
		writeBadRequest(w, "mac is required")
		return
	}

	var input events.LogInput
	if err := render.DecodeJSON(r.Body, &input); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	entry, err := s.ingestor.Ingest(r.Context(), raw, input)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": entry.ID})
}

// pulledItem is one entry of the firmware's schedule pull format.
type pulledItem struct {
	FeedTime   schedule.TimeOfDay `json:"feedTime"`
	Amount     int                `json:"amount"`
	DurationMs int                `json:"durationMs"`
}

// handleSchedulePull returns the effective schedule of an active feeder,
// with durations resolved the same way the engine resolves them.
func (s *Server) handleSchedulePull(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.Resolve(r.Context(), chi.URLParam(r, "mac"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	slots, err := s.schedules.EnabledSlots(r.Context(), dev.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	items := make([]pulledItem, 0, len(slots))
	for i := range slots {
		items = append(items, pulledItem{
			FeedTime:   slots[i].Time,
			Amount:     slots[i].Amount,
			DurationMs: s.engine.ResolveDuration(r.Context(), dev.ID, &slots[i]),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedule": items})
}
