package chat

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/assistant-desk/internal/service/chat"
	"github.com/zhouzirui/assistant-desk/pkg/utils"
)

const defaultConversationLimit = 50

// Handler 会话记录的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建会话处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{clientID}", h.handleListConversations)
	r.Get("/messages/{conversationID}", h.handleListMessages)
}

// handleListConversations 按开始时间倒序返回客户的会话
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	clientID := chi.URLParam(r, "clientID")
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.ListConversations(r.Context(), clientID, limit))
}

// handleListMessages 返回会话内的消息
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}
