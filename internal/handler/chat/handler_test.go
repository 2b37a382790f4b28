package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	modelchat "github.com/zhouzirui/assistant-desk/internal/model/chat"
	chatservice "github.com/zhouzirui/assistant-desk/internal/service/chat"
)

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService()
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func TestListConversations(t *testing.T) {
	r, chatSvc := setupRouter()
	ctx := context.Background()
	if _, err := chatSvc.ActiveConversation(ctx, "c-1"); err != nil {
		t.Fatalf("ActiveConversation err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/c-1?limit=5", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var list []modelchat.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ClientID != "c-1" {
		t.Fatalf("unexpected conversations %+v", list)
	}
}

func TestListConversationsInvalidLimit(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/conversations/c-1?limit=zero", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListMessages(t *testing.T) {
	r, chatSvc := setupRouter()
	ctx := context.Background()
	conv, _ := chatSvc.ActiveConversation(ctx, "c-1")
	_, _ = chatSvc.SaveMessage(ctx, modelchat.Message{ConversationID: conv.ID, Content: "hi", SenderType: chatservice.SenderClient})

	req := httptest.NewRequest(http.MethodGet, "/messages/1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var messages []modelchat.Message
	_ = json.NewDecoder(resp.Body).Decode(&messages)
	if len(messages) != 1 || messages[0].Content != "hi" {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestListMessagesNotFound(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/messages/42", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
