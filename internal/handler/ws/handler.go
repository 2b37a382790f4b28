package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/model/client"
	"github.com/zhouzirui/assistant-desk/internal/service/ai"
	chatservice "github.com/zhouzirui/assistant-desk/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	welcomeText = "Connected to AI Business Assistant"
)

type inboundFrame struct {
	Content string `json:"content"`
}

// Handler serves /ws/{clientID}.
type Handler struct {
	hub       *Hub
	chatSvc   *chatservice.Service
	clients   client.Store
	responder ai.Responder
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// New 创建WebSocket处理器
func New(hub *Hub, chatSvc *chatservice.Service, clients client.Store, responder ai.Responder, allowedOrigins []string) *Handler {
	if responder == nil {
		responder = ai.Fallback{}
	}
	return &Handler{
		hub:       hub,
		chatSvc:   chatSvc,
		clients:   clients,
		responder: responder,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.With().Str("component", "ws").Logger(),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{clientID}", h.handleWebSocket)
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browsers from the configured origins. "*" allows all.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if strings.TrimSpace(clientID) == "" {
		http.Error(w, "clientID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("client_id", clientID).Msg("upgrade failed")
		return
	}

	p := h.hub.add(clientID, conn)
	defer func() {
		h.hub.remove(clientID, p)
		if conv, ok := h.chatSvc.EndConversation(context.Background(), clientID); ok {
			h.logger.Info().Str("client_id", clientID).Int64("conversation_id", conv.ID).Msg("conversation ended")
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go h.pingLoop(ctx, p)

	if err := p.writeFrame(Frame{Type: "connection", Content: welcomeText, Timestamp: time.Now().UTC()}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client_id", clientID).Msg("read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil || strings.TrimSpace(in.Content) == "" {
			_ = p.writeFrame(Frame{Type: "error", Content: "invalid message: expected {\"content\": \"...\"}", Timestamp: time.Now().UTC()})
			continue
		}

		reply, err := h.respond(ctx, clientID, in.Content)
		if err != nil {
			h.logger.Error().Err(err).Str("client_id", clientID).Msg("handle message")
			_ = p.writeFrame(Frame{Type: "error", Content: "failed to process message", Timestamp: time.Now().UTC()})
			continue
		}
		if err := p.writeFrame(Frame{Type: "message", Content: reply, Timestamp: time.Now().UTC()}); err != nil {
			return
		}
	}
}

// respond stores the client message, produces the assistant reply and stores
// it in the active conversation.
func (h *Handler) respond(ctx context.Context, clientID, content string) (string, error) {
	conv, err := h.chatSvc.ActiveConversation(ctx, clientID)
	if err != nil {
		return "", err
	}

	history, err := h.chatSvc.LoadTranscript(ctx, conv.ID)
	if err != nil {
		return "", err
	}

	if _, err := h.chatSvc.SaveMessage(ctx, chat.Message{
		ConversationID: conv.ID,
		Content:        content,
		SenderType:     chatservice.SenderClient,
	}); err != nil {
		return "", err
	}

	var profile *client.Client
	if h.clients != nil {
		if c, ok := h.clients.FindByID(clientID); ok {
			profile = &c
		}
	}

	reply, err := h.responder.Reply(ctx, ai.Turn{ClientID: clientID, Profile: profile, History: history, Message: content})
	if err != nil {
		// reply still carries the fallback text
		h.logger.Warn().Err(err).Str("client_id", clientID).Msg("assistant reply degraded")
	}
	if reply == "" {
		reply = ai.FallbackReply(content)
	}

	if _, err := h.chatSvc.SaveMessage(ctx, chat.Message{
		ConversationID: conv.ID,
		Content:        reply,
		SenderType:     chatservice.SenderAssistant,
	}); err != nil {
		return "", err
	}
	return reply, nil
}

func (h *Handler) pingLoop(ctx context.Context, p *peer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ping(); err != nil {
				return
			}
		}
	}
}
