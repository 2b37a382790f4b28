package client

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/assistant-desk/internal/model/client"
	"github.com/zhouzirui/assistant-desk/pkg/utils"
)

// Handler 客户资料的HTTP处理器
type Handler struct {
	clients client.Store
}

// New 创建客户处理器
func New(clients client.Store) *Handler {
	return &Handler{
		clients: clients,
	}
}

// RegisterRoutes 注册客户相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/clients/{clientID}", h.handleGetClient)
}

// handleGetClient 返回客户资料，首次访问时创建演示客户
func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if strings.TrimSpace(clientID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "client id is required")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.clients.FindOrCreate(clientID))
}
