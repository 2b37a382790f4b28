package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/assistant-desk/internal/model/client"
)

func TestGetClientCreatesDemoProfile(t *testing.T) {
	store := client.NewMemoryStore(nil)
	r := chi.NewRouter()
	New(store).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/clients/walk-in", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got client.Client
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "walk-in" || got.Email != "walk-in@example.com" {
		t.Fatalf("unexpected client %+v", got)
	}
	if _, ok := store.FindByID("walk-in"); !ok {
		t.Fatal("client was not stored")
	}
}
