package appointment

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	model "github.com/zhouzirui/assistant-desk/internal/model/appointment"
	"github.com/zhouzirui/assistant-desk/internal/service/booking"
	"github.com/zhouzirui/assistant-desk/pkg/utils"
)

// Notifier pushes a text message to a connected client.
type Notifier interface {
	Notify(clientID, content string) bool
}

// Booker records a client's latest booking.
type Booker interface {
	Touch(clientID string, appointmentDate time.Time)
}

// Handler 预约相关的HTTP处理器
type Handler struct {
	svc      *booking.Service
	notifier Notifier
	clients  Booker
}

// New 创建预约处理器，notifier 与 clients 可以为空
func New(svc *booking.Service, notifier Notifier, clients Booker) *Handler {
	return &Handler{svc: svc, notifier: notifier, clients: clients}
}

// RegisterRoutes 注册预约路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/appointments", h.handleList)
	r.Post("/appointments", h.handleCreate)
	r.Patch("/appointments/{id}", h.handleUpdate)
	r.Delete("/appointments/{id}", h.handleDelete)
	r.Get("/stats", h.handleStats)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := booking.Query{
		ClientID: r.URL.Query().Get("client_id"),
		Status:   model.Status(r.URL.Query().Get("status")),
	}
	if q.Status != "" && !q.Status.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.List(r.Context(), q))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.CreateInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.Create(r.Context(), in)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.clients != nil {
		h.clients.Touch(created.ClientID, created.ScheduledDate)
	}
	if h.notifier != nil {
		msg := fmt.Sprintf("Your appointment has been scheduled for %s", created.ScheduledDate.Format("2006-01-02 15:04:05"))
		if h.notifier.Notify(created.ClientID, msg) {
			log.Debug().Int64("id", created.ID).Str("client_id", created.ClientID).Msg("booking confirmation pushed")
		}
	}

	utils.RespondJSON(w, http.StatusOK, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var u booking.Update
	if err := utils.DecodeJSON(r, &u); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.svc.Update(r.Context(), id, u)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondError(w, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return id, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		utils.RespondError(w, http.StatusNotFound, "Appointment not found")
	case errors.Is(err, booking.ErrInvalidStatus):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
