package scheduling

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	model "github.com/zhouzirui/assistant-desk/internal/model/scheduling"
	"github.com/zhouzirui/assistant-desk/internal/service/scheduling"
	"github.com/zhouzirui/assistant-desk/pkg/utils"
)

// Handler 排期建议的HTTP处理器
type Handler struct {
	svc *scheduling.Service
}

// New 创建排期处理器
func New(svc *scheduling.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册排期路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/scheduling/request", h.handleRequest)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.Suggest(r.Context(), req)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}
