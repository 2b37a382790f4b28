package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelchat "github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/model/client"
	"github.com/zhouzirui/assistant-desk/internal/service/ai"
	chatservice "github.com/zhouzirui/assistant-desk/internal/service/chat"
)

type fixture struct {
	hub     *Hub
	chatSvc *chatservice.Service
	url     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := NewHub()
	chatSvc := chatservice.NewService()
	h := New(hub, chatSvc, client.NewMemoryStore(nil), nil, []string{"http://localhost:4200"})

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return &fixture{hub: hub, chatSvc: chatSvc, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *fixture) dial(t *testing.T, clientID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"/ws/"+clientID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWelcomeAndFallbackReply(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "c-1")

	welcome := readFrame(t, conn)
	assert.Equal(t, "connection", welcome.Type)
	assert.Equal(t, welcomeText, welcome.Content)

	require.NoError(t, conn.WriteJSON(map[string]string{"content": "hello"}))
	reply := readFrame(t, conn)
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, ai.FallbackReply("hello"), reply.Content)

	conv, err := f.chatSvc.ActiveConversation(context.Background(), "c-1")
	require.NoError(t, err)
	transcript, err := f.chatSvc.LoadTranscript(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, chatservice.SenderClient, transcript[0].SenderType)
	assert.Equal(t, chatservice.SenderAssistant, transcript[1].SenderType)
}

func TestInvalidFrameGetsErrorFrame(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "c-1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "error", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"content": "still here"}))
	assert.Equal(t, "message", readFrame(t, conn).Type)
}

func TestNotifyReachesConnectedClient(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "c-2")
	readFrame(t, conn)

	require.Eventually(t, func() bool { return f.hub.Connected("c-2") }, time.Second, 10*time.Millisecond)
	assert.True(t, f.hub.Notify("c-2", "Your appointment has been scheduled"))
	assert.False(t, f.hub.Notify("nobody", "ignored"))

	frame := readFrame(t, conn)
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "Your appointment has been scheduled", frame.Content)
}

func TestDisconnectEndsConversation(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "c-3")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"content": "hi"}))
	readFrame(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		list := f.chatSvc.ListConversations(context.Background(), "c-3", 0)
		return len(list) == 1 && list[0].Status == modelchat.ConversationEnded
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.hub.Connected("c-3"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:4200"})

	req := httptest.NewRequest("GET", "/ws/x", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:4200")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))
}
