package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/config"
	"github.com/zhouzirui/assistant-desk/internal/handler"
	"github.com/zhouzirui/assistant-desk/internal/handler/ws"
	"github.com/zhouzirui/assistant-desk/internal/logging"
	"github.com/zhouzirui/assistant-desk/internal/model/client"
	"github.com/zhouzirui/assistant-desk/internal/service/ai"
	"github.com/zhouzirui/assistant-desk/internal/service/booking"
	"github.com/zhouzirui/assistant-desk/internal/service/chat"
	"github.com/zhouzirui/assistant-desk/internal/service/scheduling"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	clients := client.NewMemoryStore(nil)
	bookingSvc := booking.NewService()
	chatSvc := chat.NewService()
	hub := ws.NewHub()
	defer hub.CloseAll()

	var responder ai.Responder = ai.Fallback{}
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize AI service, using fallback replies - 请检查 Ark 模型相关环境变量")
		} else {
			responder = aiSvc
			log.Info().Str("model", cfg.AI.Model).Msg("AI service initialized successfully")
		}
	} else {
		log.Info().Msg("Ark 凭证未配置，使用默认回复")
	}

	if cfg.Server.ReminderInterval > 0 {
		go bookingSvc.RunReminders(ctx, hub, cfg.Server.ReminderInterval, cfg.Server.ReminderWindow)
	}

	router := handler.NewRouter(handler.Deps{
		Clients:        clients,
		Booking:        bookingSvc,
		Chat:           chatSvc,
		Scheduling:     scheduling.NewService(),
		Responder:      responder,
		Hub:            hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("AI Business Assistant API listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
