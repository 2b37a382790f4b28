// Package backend is a thin REST client for the assistant backend. Calls are
// never retried; every failure comes back as a *BackendError.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/config"
	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
	"github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/model/client"
	"github.com/zhouzirui/assistant-desk/internal/model/scheduling"
)

const maxErrorBody = 64 << 10

// ListFilter narrows ListAppointments. Empty fields are not sent.
type ListFilter struct {
	ClientID string
	Status   appointment.Status
}

// Update is the PATCH body accepted by the backend.
type Update struct {
	Status        *appointment.Status `json:"status,omitempty"`
	ScheduledDate *time.Time          `json:"scheduled_date,omitempty"`
}

// Health is the backend health payload.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for cfg.BaseURL, e.g. http://localhost:8000/api.
func New(cfg config.BackendConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  log.With().Str("component", "backend").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListAppointments(ctx context.Context, filter ListFilter) ([]appointment.Appointment, error) {
	q := url.Values{}
	if filter.ClientID != "" {
		q.Set("client_id", filter.ClientID)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	var out []appointment.Appointment
	if err := c.do(ctx, "list appointments", http.MethodGet, "/appointments", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []appointment.Appointment{}
	}
	return out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, in appointment.CreateInput) (appointment.Appointment, error) {
	var out appointment.Appointment
	err := c.do(ctx, "create appointment", http.MethodPost, "/appointments", nil, in, &out)
	return out, err
}

func (c *Client) UpdateAppointment(ctx context.Context, id int64, update Update) (appointment.Appointment, error) {
	var out appointment.Appointment
	err := c.do(ctx, "update appointment", http.MethodPatch, "/appointments/"+strconv.FormatInt(id, 10), nil, update, &out)
	return out, err
}

func (c *Client) DeleteAppointment(ctx context.Context, id int64) error {
	return c.do(ctx, "delete appointment", http.MethodDelete, "/appointments/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

func (c *Client) GetClient(ctx context.Context, id string) (client.Client, error) {
	var out client.Client
	err := c.do(ctx, "get client", http.MethodGet, "/clients/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil, &out)
	return out, err
}

// Stats returns the backend's own whole-store counts.
func (c *Client) Stats(ctx context.Context) (appointment.StatsSummary, error) {
	var out appointment.StatsSummary
	err := c.do(ctx, "stats", http.MethodGet, "/stats", nil, nil, &out)
	return out, err
}

// ListConversations returns the most recent conversations of a client. A
// limit of 0 leaves the backend default.
func (c *Client) ListConversations(ctx context.Context, clientID string, limit int) ([]chat.Conversation, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []chat.Conversation
	err := c.do(ctx, "list conversations", http.MethodGet, "/conversations/"+url.PathEscape(clientID), q, nil, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	var out []chat.Message
	err := c.do(ctx, "list messages", http.MethodGet, "/messages/"+strconv.FormatInt(conversationID, 10), nil, nil, &out)
	return out, err
}

func (c *Client) RequestScheduling(ctx context.Context, req scheduling.Request) (scheduling.Response, error) {
	var out scheduling.Response
	err := c.do(ctx, "request scheduling", http.MethodPost, "/scheduling/request", nil, req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &BackendError{Op: op, Err: errors.Wrap(err, "encode request")}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &BackendError{Op: op, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Str("url", endpoint).Msg("request failed")
		return &BackendError{Op: op, Err: errors.Wrapf(err, "%s %s", method, path)}
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(started)).Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Message: "invalid response body", Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

// errorMessage extracts {"error": ...} or {"detail": ...} from an error body.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error  string          `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if len(body.Detail) > 0 {
			var detail string
			if json.Unmarshal(body.Detail, &detail) == nil {
				return detail
			}
			return string(body.Detail)
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fallback
}
