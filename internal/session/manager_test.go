package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/assistant-desk/internal/config"
	"github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/pubsub"
)

const waitFor = 2 * time.Second

type fakeTransport struct {
	endpoint string
	inbound  chan []byte
	failures chan error
	closed   chan struct{}
	once     sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeTransport(endpoint string) *fakeTransport {
	return &fakeTransport{
		endpoint: endpoint,
		inbound:  make(chan []byte, 16),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (t *fakeTransport) Read() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case err := <-t.failures:
		return nil, err
	case <-t.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (t *fakeTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.written = append(t.written, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.written...)
}

type fakeDialer struct {
	mu        sync.Mutex
	endpoints []string
	fail      error
	gate      chan struct{}
	dialed    chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 32)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	d.mu.Lock()
	d.endpoints = append(d.endpoints, endpoint)
	fail, gate := d.fail, d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail != nil {
		return nil, fail
	}
	t := newFakeTransport(endpoint)
	d.dialed <- t
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *fakeDialer) nextTransport(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case tr := <-d.dialed:
		return tr
	case <-time.After(waitFor):
		t.Fatal("no transport dialed")
		return nil
	}
}

func testConfig(delay time.Duration, retries int) config.SessionConfig {
	return config.SessionConfig{
		BaseURL:             "ws://assistant.test",
		ReconnectDelay:      delay,
		ReconnectMaxDelay:   delay,
		ReconnectMultiplier: 1,
		ReconnectMaxRetries: retries,
	}
}

func newTestManager(t *testing.T, cfg config.SessionConfig, dialer Dialer, opts ...Option) *Manager {
	t.Helper()
	m := New(cfg, append([]Option{WithDialer(dialer)}, opts...)...)
	t.Cleanup(m.Close)
	return m
}

func next[T any](t *testing.T, sub *pubsub.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func nextTrue(t *testing.T, sub *pubsub.Subscription[bool]) {
	t.Helper()
	for {
		if next(t, sub) {
			return
		}
	}
}

func TestConnectReachesConnected(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)
	states := m.ConnectionState(context.Background())

	m.Connect("c1")

	assert.False(t, next(t, states), "connecting must report false")
	assert.True(t, next(t, states))
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, "ws://assistant.test/ws/c1", dialer.nextTransport(t).endpoint)
	assert.Equal(t, "c1", m.ClientID())
}

func TestEndpointEscapesClientID(t *testing.T) {
	m := New(testConfig(time.Second, 0), WithDialer(newFakeDialer()))
	defer m.Close()

	assert.Equal(t, "ws://assistant.test/ws/a%2Fb%20c", m.Endpoint("a/b c"))
}

func TestMessagesFanOutInArrivalOrder(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)
	first := m.Messages(context.Background())
	second := m.Messages(context.Background())

	m.Connect("c1")
	tr := dialer.nextTransport(t)
	tr.inbound <- []byte(`{"type":"connection","content":"Connected to AI Business Assistant","timestamp":"2024-05-01T09:00:00.000001"}`)
	tr.inbound <- []byte(`{"type":"message","content":"hello","metadata":{"intent":"greet"}}`)

	for _, sub := range []*pubsub.Subscription[chat.InboundMessage]{first, second} {
		welcome := next(t, sub)
		assert.Equal(t, chat.SenderSystem, welcome.SenderType)
		assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 1000, time.UTC), welcome.Timestamp)

		reply := next(t, sub)
		assert.Equal(t, "hello", reply.Content)
		assert.Equal(t, chat.SenderAssistant, reply.SenderType)
		assert.JSONEq(t, `{"intent":"greet"}`, string(reply.Metadata))
	}
}

func TestSubscribersGetIndependentMetadata(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)
	first := m.Messages(context.Background())
	second := m.Messages(context.Background())

	m.Connect("c1")
	dialer.nextTransport(t).inbound <- []byte(`{"type":"message","content":"x","metadata":{"k":1}}`)

	got := next(t, first)
	got.Metadata[0] = '['
	assert.JSONEq(t, `{"k":1}`, string(next(t, second).Metadata))
}

func TestMalformedFrameIsReportedAndSessionSurvives(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)
	messages := m.Messages(context.Background())
	errs := m.Errors(context.Background())

	m.Connect("c1")
	tr := dialer.nextTransport(t)
	tr.inbound <- []byte(`{not json`)
	tr.inbound <- []byte(`{"type":"message","content":"still here"}`)

	var decodeErr *DecodeError
	require.ErrorAs(t, next(t, errs), &decodeErr)
	assert.Equal(t, "still here", next(t, messages).Content)
	assert.Equal(t, StateConnected, m.State())
}

func TestSendWhileDisconnectedIsRejected(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)

	err := m.SendMessage("hi")

	assert.ErrorIs(t, err, ErrSendRejected)
	assert.Zero(t, dialer.dialCount())
}

func TestSendWhileConnectingIsRejected(t *testing.T) {
	dialer := newFakeDialer()
	dialer.gate = make(chan struct{})
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)

	m.Connect("c1")
	assert.Equal(t, StateConnecting, m.State())
	assert.ErrorIs(t, m.SendMessage("hi"), ErrSendRejected)
	close(dialer.gate)
}

func TestSendWritesContentAndTimestamp(t *testing.T) {
	dialer := newFakeDialer()
	stamp := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	m := newTestManager(t, testConfig(time.Hour, 0), dialer, WithClock(func() time.Time { return stamp }))
	states := m.ConnectionState(context.Background())

	m.Connect("c1")
	tr := dialer.nextTransport(t)
	nextTrue(t, states)

	require.NoError(t, m.SendMessage("book me for friday"))

	frames := tr.frames()
	require.Len(t, frames, 1)
	var out chat.OutboundMessage
	require.NoError(t, json.Unmarshal(frames[0], &out))
	assert.Equal(t, "book me for friday", out.Content)
	assert.True(t, stamp.Equal(out.Timestamp))

	assert.ErrorIs(t, m.SendMessage("   "), ErrEmptyMessage)
}

func TestWriteFailureTriggersReconnectPath(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(10*time.Millisecond, 0), dialer)
	states := m.ConnectionState(context.Background())

	m.Connect("c1")
	tr := dialer.nextTransport(t)
	nextTrue(t, states)
	tr.mu.Lock()
	tr.writeErr = errors.New("broken pipe")
	tr.mu.Unlock()

	err := m.SendMessage("hi")

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "write", terr.Op)
	assert.False(t, next(t, states))
	assert.Equal(t, "ws://assistant.test/ws/c1", dialer.nextTransport(t).endpoint)
}

func TestTransportCloseSchedulesReconnectToSameClient(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(20*time.Millisecond, 0), dialer)
	states := m.ConnectionState(context.Background())
	errs := m.Errors(context.Background())

	m.Connect("c1")
	first := dialer.nextTransport(t)
	nextTrue(t, states)

	first.failures <- io.EOF

	assert.False(t, next(t, states))
	var terr *TransportError
	require.ErrorAs(t, next(t, errs), &terr)
	assert.Equal(t, "read", terr.Op)
	assert.Equal(t, "c1", terr.ClientID)

	second := dialer.nextTransport(t)
	assert.Equal(t, "ws://assistant.test/ws/c1", second.endpoint)
	nextTrue(t, states)
	assert.True(t, first.isClosed())
}

func TestDisconnectSuppressesPendingReconnect(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(50*time.Millisecond, 0), dialer)
	states := m.ConnectionState(context.Background())

	m.Connect("c1")
	tr := dialer.nextTransport(t)
	nextTrue(t, states)

	tr.failures <- io.EOF
	assert.False(t, next(t, states))
	m.Disconnect()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDisconnectNeverReconnectsAfterExplicitClose(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(10*time.Millisecond, 0), dialer)
	states := m.ConnectionState(context.Background())

	m.Connect("c1")
	tr := dialer.nextTransport(t)
	nextTrue(t, states)

	m.Disconnect()

	assert.False(t, next(t, states))
	assert.True(t, tr.isClosed())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestDisconnectDuringDialDiscardsLateTransport(t *testing.T) {
	dialer := newFakeDialer()
	dialer.gate = make(chan struct{})
	m := newTestManager(t, testConfig(10*time.Millisecond, 0), dialer)

	m.Connect("c1")
	m.Disconnect()
	close(dialer.gate)

	tr := dialer.nextTransport(t)
	require.Eventually(t, tr.isClosed, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestConnectReplacesExistingTransport(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)
	states := m.ConnectionState(context.Background())

	m.Connect("c1")
	first := dialer.nextTransport(t)
	nextTrue(t, states)

	m.Connect("c2")
	second := dialer.nextTransport(t)
	nextTrue(t, states)

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, "ws://assistant.test/ws/c2", second.endpoint)
	assert.Equal(t, "c2", m.ClientID())
}

func TestReconnectGivesUpAfterMaxRetries(t *testing.T) {
	dialer := newFakeDialer()
	dialer.fail = errors.New("connection refused")
	m := newTestManager(t, testConfig(5*time.Millisecond, 2), dialer)
	errs := m.Errors(context.Background())

	m.Connect("c1")

	for {
		err := next(t, errs)
		if errors.Is(err, ErrReconnectExhausted) {
			break
		}
		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "dial", terr.Op)
	}

	assert.Equal(t, 3, dialer.dialCount())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestReconnectPolicyIsBoundedExponential(t *testing.T) {
	policy := newReconnectPolicy(config.SessionConfig{
		ReconnectDelay:      time.Second,
		ReconnectMaxDelay:   3 * time.Second,
		ReconnectMultiplier: 2,
		ReconnectMaxRetries: 4,
	})

	assert.Equal(t, time.Second, policy.NextBackOff())
	assert.Equal(t, 2*time.Second, policy.NextBackOff())
	assert.Equal(t, 3*time.Second, policy.NextBackOff())
	assert.Equal(t, 3*time.Second, policy.NextBackOff())
	assert.Equal(t, backoff.Stop, policy.NextBackOff())

	policy.Reset()
	assert.Equal(t, time.Second, policy.NextBackOff())
}

func TestFixedUnboundedPolicy(t *testing.T) {
	policy := newReconnectPolicy(testConfig(3*time.Second, 0))

	for i := 0; i < 50; i++ {
		require.Equal(t, 3*time.Second, policy.NextBackOff())
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	m := New(testConfig(time.Hour, 0), WithDialer(newFakeDialer()))
	messages := m.Messages(context.Background())

	m.Close()

	_, ok := <-messages.C
	assert.False(t, ok)
	assert.ErrorIs(t, m.SendMessage("hi"), ErrClosed)
}

func TestCloseWithStalledStateSubscriber(t *testing.T) {
	dialer := newFakeDialer()
	m := New(testConfig(time.Hour, 0), WithDialer(dialer))
	stalled := m.ConnectionState(context.Background())

	for i := 0; i < 20; i++ {
		m.Connect("c1")
		m.Disconnect()
	}

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("Close waited on a state subscriber that never reads")
	}
	assert.True(t, stalled.Overflowed())
}

func TestStalledMessageSubscriberDoesNotHoldReadLoop(t *testing.T) {
	dialer := newFakeDialer()
	m := newTestManager(t, testConfig(time.Hour, 0), dialer)
	stalled := m.Messages(context.Background())
	live := m.Messages(context.Background())
	states := m.ConnectionState(context.Background())

	m.Connect("c1")
	nextTrue(t, states)
	tr := dialer.nextTransport(t)

	for i := 0; i < 2*pubsub.DefaultBuffer; i++ {
		tr.inbound <- []byte(`{"type":"message","content":"tick"}`)
		msg := next(t, live)
		require.Equal(t, "tick", msg.Content)
	}

	select {
	case <-stalled.Done():
	case <-time.After(waitFor):
		t.Fatal("stalled subscriber was not released")
	}
	assert.True(t, stalled.Overflowed())
	assert.False(t, live.Overflowed())
	assert.Equal(t, StateConnected, m.State())
}
