package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 10 * time.Second

// Frame is the JSON shape written to every client.
type Frame struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// peer 单个客户端连接，写操作串行化
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) writeFrame(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

func (p *peer) ping() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Hub WebSocket连接管理器，按 clientID 保存当前连接
type Hub struct {
	mu     sync.RWMutex
	peers  map[string]*peer
	now    func() time.Time
	logger zerolog.Logger
}

// NewHub 创建连接管理器
func NewHub() *Hub {
	return &Hub{
		peers:  make(map[string]*peer),
		now:    time.Now,
		logger: log.With().Str("component", "ws").Logger(),
	}
}

// add 添加连接，已存在的旧连接会被关闭
func (h *Hub) add(clientID string, conn *websocket.Conn) *peer {
	p := &peer{conn: conn}

	h.mu.Lock()
	old, exists := h.peers[clientID]
	h.peers[clientID] = p
	total := len(h.peers)
	h.mu.Unlock()

	if exists {
		_ = old.conn.Close()
	}
	h.logger.Info().Str("client_id", clientID).Int("total", total).Msg("client connected")
	return p
}

// remove 仅当 p 仍是当前连接时移除
func (h *Hub) remove(clientID string, p *peer) {
	h.mu.Lock()
	current, ok := h.peers[clientID]
	if ok && current == p {
		delete(h.peers, clientID)
	}
	total := len(h.peers)
	h.mu.Unlock()

	_ = p.conn.Close()
	h.logger.Info().Str("client_id", clientID).Int("total", total).Msg("client disconnected")
}

// Notify pushes a message frame to clientID if it is connected.
func (h *Hub) Notify(clientID, content string) bool {
	h.mu.RLock()
	p, ok := h.peers[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if err := p.writeFrame(Frame{Type: "message", Content: content, Timestamp: h.now().UTC()}); err != nil {
		h.logger.Warn().Err(err).Str("client_id", clientID).Msg("notify failed")
		h.remove(clientID, p)
		return false
	}
	return true
}

// Connected reports whether clientID currently has a connection.
func (h *Hub) Connected(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[clientID]
	return ok
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]*peer)
	h.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close()
	}
}
