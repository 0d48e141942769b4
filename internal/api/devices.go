package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/nerrad567/feeder-core/internal/device"
)

const ctxKeyDevice contextKey = "device"

// ownedDeviceMiddleware loads {deviceId} for the caller. A malformed id is a
// 400; a missing or foreign device is a 404.
func (s *Server) ownedDeviceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "deviceId"), 10, 64)
		if err != nil || id <= 0 {
			writeBadRequest(w, "invalid device id")
			return
		}

		dev, err := s.devices.GetOwned(r.Context(), id, userIDFromContext(r.Context()))
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyDevice, dev)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceFromContext returns the device loaded by ownedDeviceMiddleware.
func deviceFromContext(ctx context.Context) *device.Device {
	dev, _ := ctx.Value(ctxKeyDevice).(*device.Device) //nolint:errcheck // set by middleware
	return dev
}

// handleListDevices lists the caller's devices. ?includeInactive=true also
// returns soft-deleted ones.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive")) //nolint:errcheck // false on bad input

	devices, err := s.devices.ListOwned(r.Context(), userIDFromContext(r.Context()), includeInactive)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// registerRequest is the body of POST /devices. Serial and mac are aliases.
type registerRequest struct {
	Serial string `json:"serial"`
	Mac    string `json:"mac"`
	Name   string `json:"name"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// handleUpsertDevice registers a device by serial, or re-claims and updates
// an existing one for the caller. 201 when created, 200 when updated.
func (s *Server) handleUpsertDevice(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	serial := req.Serial
	if serial == "" {
		serial = req.Mac
	}
	if strings.TrimSpace(serial) == "" {
		writeBadRequest(w, "serial is required")
		return
	}

	dev, created, err := s.devices.ResolveOrCreate(r.Context(), device.Registration{
		Serial:      serial,
		OwnerUserID: userIDFromContext(r.Context()),
		Name:        req.Name,
		Host:        req.Host,
		Port:        req.Port,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"device":  dev,
		"created": created,
	})
}

// handleGetDevice returns one owned device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, deviceFromContext(r.Context()))
}

// updateDeviceRequest carries the editable fields; nil means unchanged.
type updateDeviceRequest struct {
	Name  *string       `json:"name"`
	Host  *string       `json:"host"`
	Port  *int          `json:"port"`
	Model *device.Model `json:"model"`
}

// handleUpdateDevice edits name, host, port and model.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := *deviceFromContext(r.Context())
	if req.Name != nil {
		dev.Name = strings.TrimSpace(*req.Name)
	}
	if req.Host != nil {
		dev.Host = strings.TrimSpace(*req.Host)
	}
	if req.Port != nil {
		dev.Port = *req.Port
	}
	if req.Model != nil {
		dev.Model = *req.Model
	}

	if err := s.devices.Update(r.Context(), &dev); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &dev)
}

// handleDeleteDevice soft-deletes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())
	if err := s.devices.SetActive(r.Context(), dev.ID, userIDFromContext(r.Context()), false); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetActive toggles the active flag.
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Active == nil {
		writeBadRequest(w, "active is required")
		return
	}

	dev := *deviceFromContext(r.Context())
	if err := s.devices.SetActive(r.Context(), dev.ID, userIDFromContext(r.Context()), *req.Active); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	dev.Active = *req.Active
	writeJSON(w, http.StatusOK, &dev)
}

// handleGetSettings returns stored settings or the defaults.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.devices.Settings(r.Context(), deviceFromContext(r.Context()).ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings validates and upserts settings. Omitted fields keep
// their current (or default) value.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())

	settings, err := s.devices.Settings(r.Context(), dev.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := render.DecodeJSON(r.Body, settings); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	settings.DeviceID = dev.ID

	if err := s.devices.SaveSettings(r.Context(), settings); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
