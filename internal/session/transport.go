package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one live bidirectional text connection.
type Transport interface {
	// Read blocks until the next text frame arrives or the connection fails.
	Read() ([]byte, error)
	Write(data []byte) error
	Close() error
}

// Dialer opens transports to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// WebSocketOptions WebSocket连接选项
type WebSocketOptions struct {
	HandshakeTimeout time.Duration // 握手超时时间
	ReadTimeout      time.Duration // 读取超时时间
	WriteTimeout     time.Duration // 写入超时时间
	PingInterval     time.Duration // Ping间隔
	ReadLimit        int64         // 单帧最大字节数
}

// DefaultWebSocketOptions 默认连接选项
func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// WebSocketDialer dials gorilla/websocket connections.
type WebSocketDialer struct {
	dialer  *websocket.Dialer
	options WebSocketOptions
}

// NewWebSocketDialer 创建WebSocket拨号器
func NewWebSocketDialer(options WebSocketOptions) *WebSocketDialer {
	defaults := DefaultWebSocketOptions()
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = defaults.ReadTimeout
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaults.WriteTimeout
	}
	if options.PingInterval <= 0 || options.PingInterval >= options.ReadTimeout {
		options.PingInterval = options.ReadTimeout * 9 / 10
	}
	if options.ReadLimit <= 0 {
		options.ReadLimit = defaults.ReadLimit
	}

	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: options.HandshakeTimeout,
		},
		options: options,
	}
}

// Dial 建立单次连接
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadLimit(d.options.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(d.options.ReadTimeout))
	// 设置pong处理器
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(d.options.ReadTimeout))
	})

	t := &wsTransport{
		conn:    conn,
		options: d.options,
		done:    make(chan struct{}),
	}
	go t.pingLoop()
	return t, nil
}

type wsTransport struct {
	conn    *websocket.Conn
	options WebSocketOptions
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	t.conn.SetReadDeadline(time.Now().Add(t.options.ReadTimeout))
	return data, nil
}

func (t *wsTransport) Write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.options.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = t.conn.Close()
	})
	return err
}

// pingLoop 定期发送ping消息
func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(t.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.options.WriteTimeout)); err != nil {
				// 读循环会因超时或关闭而退出
				return
			}
		}
	}
}
