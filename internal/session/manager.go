// Package session keeps one logical conversation channel alive across network
// interruptions and fans inbound events out to subscribers.
package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/config"
	"github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/pubsub"
)

// Option customises a Manager.
type Option func(*Manager)

// WithDialer replaces the default websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the clock used to stamp outbound messages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns at most one live Transport and drives its lifecycle.
//
// Every Connect and Disconnect starts a new epoch. Dial goroutines, read loops
// and reconnect timers carry the epoch they were started in and become no-ops
// once it is superseded, so a reconnect scheduled before Disconnect can never
// reopen the transport.
type Manager struct {
	cfg    config.SessionConfig
	dialer Dialer
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	clientID   string
	epoch      uint64
	transport  Transport
	cancelDial context.CancelFunc
	timer      *time.Timer
	policy     backoff.BackOff
	closed     bool
	queue      []event

	messages *pubsub.Broadcaster[chat.InboundMessage]
	states   *pubsub.Broadcaster[bool]
	errs     *pubsub.Broadcaster[error]

	wake      chan struct{}
	stop      chan struct{}
	drained   chan struct{}
	closeOnce sync.Once
}

// event is a queued state change or error, published by the dispatcher so
// subscribers are never called with mu held.
type event struct {
	connected *bool
	err       error
}

// New creates a disconnected manager.
func New(cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   log.With().Str("component", "session").Logger(),
		now:      time.Now,
		state:    StateDisconnected,
		policy:   newReconnectPolicy(cfg),
		messages: pubsub.NewBroadcaster(chat.InboundMessage.Clone, pubsub.WithOverflow(pubsub.Evict)),
		states:   pubsub.NewBroadcaster[bool](nil, pubsub.WithOverflow(pubsub.Evict)),
		errs:     pubsub.NewBroadcaster[error](nil, pubsub.WithOverflow(pubsub.Evict)),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		drained:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		options := DefaultWebSocketOptions()
		options.HandshakeTimeout = cfg.HandshakeTimeout
		m.dialer = NewWebSocketDialer(options)
	}

	go m.dispatch()
	return m
}

// newReconnectPolicy builds the bounded exponential backoff used between
// reconnect attempts. Multiplier 1 with zero retries reproduces a fixed,
// unbounded delay.
func newReconnectPolicy(cfg config.SessionConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectDelay
	b.MaxInterval = cfg.ReconnectMaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = cfg.ReconnectMultiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	if cfg.ReconnectMaxRetries > 0 {
		return backoff.WithMaxRetries(b, uint64(cfg.ReconnectMaxRetries))
	}
	return b
}

// Endpoint returns the channel URL for clientID.
func (m *Manager) Endpoint(clientID string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/ws/" + url.PathEscape(clientID)
}

// Connect tears down any current transport or pending reconnect and opens a
// new one for clientID. The state becomes Connecting immediately.
func (m *Manager) Connect(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.policy.Reset()
	m.startLocked(clientID)
}

// Disconnect releases the transport and cancels any pending reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.releaseLocked()
	m.setStateLocked(StateDisconnected)
}

// SendMessage writes {content, timestamp} to the transport. While not
// connected it returns ErrSendRejected and nothing is written.
func (m *Manager) SendMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateConnected || m.transport == nil {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug().Str("state", state.String()).Msg("send rejected")
		return ErrSendRejected
	}
	t, epoch, clientID := m.transport, m.epoch, m.clientID
	m.mu.Unlock()

	frame, err := encodeOutbound(chat.OutboundMessage{Content: text, Timestamp: m.now().UTC()})
	if err != nil {
		return err
	}

	if err := t.Write(frame); err != nil {
		terr := &TransportError{ClientID: clientID, Op: "write", Err: err}
		m.fail(epoch, terr)
		return terr
	}
	return nil
}

// Messages subscribes to decoded inbound messages. No history is replayed.
//
// All three streams end a subscription whose buffer is full rather than stall
// the read loop; Overflowed on the subscription reports that case.
func (m *Manager) Messages(ctx context.Context) *pubsub.Subscription[chat.InboundMessage] {
	return m.messages.Subscribe(ctx, 0)
}

// ConnectionState subscribes to connectivity changes: one value per state
// transition, true only when the new state is Connected.
func (m *Manager) ConnectionState(ctx context.Context) *pubsub.Subscription[bool] {
	return m.states.Subscribe(ctx, 0)
}

// Errors subscribes to non-fatal session errors: *TransportError,
// *DecodeError and ErrReconnectExhausted.
func (m *Manager) Errors(ctx context.Context) *pubsub.Subscription[error] {
	return m.errs.Subscribe(ctx, 0)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ClientID returns the identifier of the current or last session.
func (m *Manager) ClientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID
}

// Close disconnects and ends every subscription. Pending state and error
// events are flushed first.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.Disconnect()

		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		close(m.stop)
		<-m.drained

		m.messages.Close()
		m.states.Close()
		m.errs.Close()
	})
}

func (m *Manager) startLocked(clientID string) {
	m.releaseLocked()
	m.epoch++
	epoch := m.epoch
	m.clientID = clientID
	m.setStateLocked(StateConnecting)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	endpoint := m.Endpoint(clientID)

	m.logger.Info().Str("client_id", clientID).Str("endpoint", endpoint).Msg("connecting")
	go m.run(ctx, epoch, clientID, endpoint)
}

func (m *Manager) releaseLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("transport close")
		}
		m.transport = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	connected := s.Connected()
	m.enqueueLocked(event{connected: &connected})
}

func (m *Manager) enqueueLocked(ev event) {
	m.queue = append(m.queue, ev)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && epoch == m.epoch
}

func (m *Manager) run(ctx context.Context, epoch uint64, clientID, endpoint string) {
	t, err := m.dialer.Dial(ctx, endpoint)
	if err != nil {
		m.fail(epoch, &TransportError{ClientID: clientID, Op: "dial", Err: err})
		return
	}

	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		_ = t.Close()
		return
	}
	m.transport = t
	m.policy.Reset()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info().Str("client_id", clientID).Msg("connected")
	m.readLoop(epoch, clientID, t)
}

func (m *Manager) readLoop(epoch uint64, clientID string, t Transport) {
	for {
		data, err := t.Read()
		if err != nil {
			m.fail(epoch, &TransportError{ClientID: clientID, Op: "read", Err: err})
			return
		}

		msg, err := decodeFrame(data, m.now().UTC())
		if err != nil {
			m.logger.Warn().Err(err).Str("client_id", clientID).Msg("dropping malformed frame")
			m.mu.Lock()
			if epoch == m.epoch {
				m.enqueueLocked(event{err: err})
			}
			m.mu.Unlock()
			continue
		}

		if !m.current(epoch) {
			return
		}
		m.messages.Publish(msg)
	}
}

// fail moves a live session to Disconnected and schedules a reconnect. Calls
// from a superseded epoch are ignored.
func (m *Manager) fail(epoch uint64, err *TransportError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// a write failure and the read error it causes both land here
	if m.closed || epoch != m.epoch || m.state == StateDisconnected {
		return
	}

	m.releaseLocked()
	m.setStateLocked(StateDisconnected)
	m.enqueueLocked(event{err: err})

	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.logger.Error().Err(err).Str("client_id", err.ClientID).Msg("giving up reconnecting")
		m.enqueueLocked(event{err: ErrReconnectExhausted})
		return
	}

	m.logger.Warn().Err(err).Str("client_id", err.ClientID).Dur("retry_in", delay).Msg("connection lost")
	clientID := m.clientID
	m.timer = time.AfterFunc(delay, func() { m.reconnect(epoch, clientID) })
}

func (m *Manager) reconnect(epoch uint64, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || epoch != m.epoch || m.state != StateDisconnected {
		return
	}
	m.timer = nil
	m.startLocked(clientID)
}

func (m *Manager) dispatch() {
	defer close(m.drained)
	for {
		select {
		case <-m.wake:
			m.flush()
		case <-m.stop:
			m.flush()
			return
		}
	}
}

func (m *Manager) flush() {
	for {
		m.mu.Lock()
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			if ev.connected != nil {
				m.states.Publish(*ev.connected)
			}
			if ev.err != nil {
				m.errs.Publish(ev.err)
			}
		}
	}
}
