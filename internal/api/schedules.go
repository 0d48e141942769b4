package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/nerrad567/feeder-core/internal/schedule"
)

// scheduleRequest is the body of schedule create and update. Enabled
// defaults to true at both levels.
type scheduleRequest struct {
	Name    string        `json:"name"`
	Enabled *bool         `json:"enabled"`
	Items   []itemRequest `json:"items"`
}

type itemRequest struct {
	Time       schedule.TimeOfDay `json:"time"`
	Amount     int                `json:"amount"`
	DurationMs *int               `json:"duration_ms"`
	Enabled    *bool              `json:"enabled"`
}

func (req *scheduleRequest) toSchedule(deviceID int64) *schedule.Schedule {
	sched := &schedule.Schedule{
		DeviceID: deviceID,
		Name:     req.Name,
		Enabled:  req.Enabled == nil || *req.Enabled,
		Items:    make([]schedule.Item, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		sched.Items = append(sched.Items, schedule.Item{
			Time:       it.Time,
			Amount:     it.Amount,
			DurationMs: it.DurationMs,
			Enabled:    it.Enabled == nil || *it.Enabled,
		})
	}
	return sched
}

func decodeSchedule(w http.ResponseWriter, r *http.Request, deviceID int64) (*schedule.Schedule, bool) {
	var req scheduleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body: "+err.Error())
		return nil, false
	}
	sched := req.toSchedule(deviceID)
	if err := sched.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return nil, false
	}
	return sched, true
}

func scheduleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "scheduleId"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid schedule id")
		return 0, false
	}
	return id, true
}

// handleListSchedules returns every schedule of the device. The response
// carries an ETag; a matching If-None-Match yields 304.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())

	schedules, err := s.schedules.ListByDevice(r.Context(), dev.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	etag, err := schedule.ETag(schedules)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

// handleCreateSchedule creates a schedule with its items.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())
	sched, ok := decodeSchedule(w, r, dev.ID)
	if !ok {
		return
	}

	if err := s.schedules.Create(r.Context(), sched); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("schedule created", "device_id", dev.ID, "schedule_id", sched.ID, "items", len(sched.Items))

	created, err := s.schedules.GetByID(r.Context(), dev.ID, sched.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetSchedule returns one schedule of the device.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	sched, err := s.schedules.GetByID(r.Context(), deviceFromContext(r.Context()).ID, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleUpdateSchedule rewrites a schedule; its items are replaced wholesale.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	sched, ok := decodeSchedule(w, r, dev.ID)
	if !ok {
		return
	}
	sched.ID = id

	if err := s.schedules.Update(r.Context(), sched); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("schedule updated", "device_id", dev.ID, "schedule_id", id, "items", len(sched.Items))

	updated, err := s.schedules.GetByID(r.Context(), dev.ID, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteSchedule removes a schedule and its items.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	if err := s.schedules.Delete(r.Context(), dev.ID, id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("schedule deleted", "device_id", dev.ID, "schedule_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// syncResponse reports a push. ok means the push ran and the stored
// schedules are intact; whether the device took it is in delivered and
// deviceStatusCode (null when unreachable).
type syncResponse struct {
	OK               bool         `json:"ok"`
	Delivered        bool         `json:"delivered"`
	Device           syncEndpoint `json:"device"`
	SlotsCount       int          `json:"slotsCount"`
	DeviceStatusCode *int         `json:"deviceStatusCode"`
	DeviceResponse   string       `json:"deviceResponse"`
}

type syncEndpoint struct {
	ID   int64  `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// handleSyncSchedules pushes the effective schedule to the device.
func (s *Server) handleSyncSchedules(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())

	res, err := s.sync.Push(r.Context(), dev.ID, userIDFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		OK:               true,
		Delivered:        res.Delivered(),
		Device:           syncEndpoint{ID: res.DeviceID, Host: res.Host, Port: res.Port},
		SlotsCount:       res.ItemCount,
		DeviceStatusCode: res.DeviceStatusCode,
		DeviceResponse:   res.DeviceResponse,
	})
}
