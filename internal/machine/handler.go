// internal/machine/handler.go
package machine

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the registry endpoints on a router mounted at /machines.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.handleRegister)
	r.Get("/", h.handleList)
	r.Get("/{machineID}", h.handleGet)
	r.Patch("/{machineID}", h.handleUpdate)
	r.Put("/{machineID}/status", h.handleChangeStatus)
	r.Get("/{machineID}/history", h.handleHistory)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	m, err := h.service.RegisterMachine(r.Context(), req)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/machines/"+m.ID.String())
	httpx.WriteJSON(r.Context(), w, http.StatusCreated, m)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := ListInput{OwnerID: q.Get("owner_id"), Status: q.Get("status")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, domainerr.Newf(domainerr.CodeValidation, "invalid limit %q", raw))
			return
		}
		in.Limit = limit
	}

	machines, err := h.service.ListMachines(r.Context(), in)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	if machines == nil {
		machines = []Snapshot{}
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, machines)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMachine(r.Context(), chi.URLParam(r, "machineID"))
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, m)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Brand         *string `json:"brand"`
		Model         *string `json:"model"`
		Nickname      *string `json:"nickname"`
		MachineTypeID *string `json:"machine_type_id"`
		Version       int     `json:"version"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	patch := Patch{Brand: req.Brand, Model: req.Model, Nickname: req.Nickname, MachineTypeID: req.MachineTypeID}
	m, err := h.service.UpdateMachine(r.Context(), chi.URLParam(r, "machineID"), patch, req.Version)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, m)
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status  string `json:"status"`
		Version int    `json:"version"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	m, err := h.service.ChangeStatus(r.Context(), chi.URLParam(r, "machineID"), req.Status, req.Version)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, m)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), chi.URLParam(r, "machineID"))
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(r.Context(), w, http.StatusOK, entries)
}
