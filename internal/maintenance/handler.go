// internal/maintenance/handler.go
package maintenance

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/httpx"
	"fleetmaint/internal/machine"
)

// Headers carrying the caller identity set by the authenticating proxy.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserType = "X-User-Type"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes registers alarm endpoints and machine deletion on a router mounted at /machines.
func (h *Handler) Routes(r chi.Router) {
	r.Delete("/{machineID}", h.handleDeleteMachine)
	r.Post("/{machineID}/alarms", h.handleCreateAlarm)
	r.Get("/{machineID}/alarms", h.handleListAlarms)
	r.Post("/{machineID}/alarms/{alarmID}/reset", h.handleResetAlarm)
	r.Delete("/{machineID}/alarms/{alarmID}", h.handleDeleteAlarm)
}

func (h *Handler) handleCreateAlarm(w http.ResponseWriter, r *http.Request) {
	var req CreateAlarmInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	req.MachineID = chi.URLParam(r, "machineID")

	alarm, err := h.service.CreateAlarm(r.Context(), req)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusCreated, alarm)
}

func (h *Handler) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	in := ListAlarmsInput{MachineID: chi.URLParam(r, "machineID")}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, domainerr.Newf(domainerr.CodeValidation, "invalid active filter %q", raw))
			return
		}
		in.IsActive = &active
	}

	alarms, err := h.service.ListAlarms(r.Context(), in)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	if alarms == nil {
		alarms = []machine.MaintenanceAlarm{}
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, alarms)
}

func (h *Handler) handleResetAlarm(w http.ResponseWriter, r *http.Request) {
	in := ResetAlarmInput{
		MachineID: chi.URLParam(r, "machineID"),
		AlarmID:   chi.URLParam(r, "alarmID"),
	}
	if raw := r.URL.Query().Get("reset_to_zero"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, domainerr.Newf(domainerr.CodeValidation, "invalid reset_to_zero %q", raw))
			return
		}
		in.ResetToZero = &v
	}

	alarm, err := h.service.ResetAlarm(r.Context(), in)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, alarm)
}

func (h *Handler) handleDeleteAlarm(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteAlarm(r.Context(), DeleteAlarmInput{
		MachineID: chi.URLParam(r, "machineID"),
		AlarmID:   chi.URLParam(r, "alarmID"),
	})
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteMachine(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteMachine(r.Context(), DeleteMachineInput{
		MachineID:        chi.URLParam(r, "machineID"),
		RequestingUserID: r.Header.Get(HeaderUserID),
		UserType:         r.Header.Get(HeaderUserType),
	})
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
