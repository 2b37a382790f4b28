package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/handler/appointment"
	"github.com/zhouzirui/assistant-desk/internal/handler/chat"
	"github.com/zhouzirui/assistant-desk/internal/handler/client"
	"github.com/zhouzirui/assistant-desk/internal/handler/scheduling"
	"github.com/zhouzirui/assistant-desk/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/assistant-desk/internal/middleware"
	clientModel "github.com/zhouzirui/assistant-desk/internal/model/client"
	aiService "github.com/zhouzirui/assistant-desk/internal/service/ai"
	bookingService "github.com/zhouzirui/assistant-desk/internal/service/booking"
	chatService "github.com/zhouzirui/assistant-desk/internal/service/chat"
	schedulingService "github.com/zhouzirui/assistant-desk/internal/service/scheduling"
	"github.com/zhouzirui/assistant-desk/pkg/utils"
)

// Deps groups the services exposed over HTTP.
type Deps struct {
	Clients        *clientModel.MemoryStore
	Booking        *bookingService.Service
	Chat           *chatService.Service
	Scheduling     *schedulingService.Service
	Responder      aiService.Responder
	Hub            *ws.Hub
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	// 实时聊天
	wsHandler := ws.New(deps.Hub, deps.Chat, deps.Clients, deps.Responder, deps.AllowedOrigins)
	wsHandler.RegisterRoutes(r)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "AI Business Assistant API", "version": "1.0.0"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handleHealth)

		client.New(deps.Clients).RegisterRoutes(api)
		appointment.New(deps.Booking, deps.Hub, deps.Clients).RegisterRoutes(api)
		chat.New(deps.Chat).RegisterRoutes(api)
		scheduling.New(deps.Scheduling).RegisterRoutes(api)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "AI Business Assistant",
	})
}
