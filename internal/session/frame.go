package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/assistant-desk/internal/model/chat"
)

type inboundFrame struct {
	Type       string          `json:"type"`
	Content    *string         `json:"content"`
	SenderType string          `json:"sender_type"`
	Timestamp  json.RawMessage `json:"timestamp"`
	Metadata   json.RawMessage `json:"metadata"`
}

// naive ISO timestamps (no zone) are produced by the backend in UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// decodeFrame turns a raw text frame into an InboundMessage. receivedAt is
// used when the frame carries no usable timestamp.
func decodeFrame(data []byte, receivedAt time.Time) (chat.InboundMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return chat.InboundMessage{}, &DecodeError{Frame: data, Err: errors.New("frame is not a JSON object")}
	}

	var frame inboundFrame
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return chat.InboundMessage{}, &DecodeError{Frame: data, Err: err}
	}
	if frame.Content == nil && frame.Type == "" {
		return chat.InboundMessage{}, &DecodeError{Frame: data, Err: errors.New("frame has neither type nor content")}
	}

	msg := chat.InboundMessage{
		Type:       frame.Type,
		SenderType: resolveSender(frame.SenderType, frame.Type),
		Timestamp:  parseTimestamp(frame.Timestamp, receivedAt),
	}
	if frame.Content != nil {
		msg.Content = *frame.Content
	}
	if len(frame.Metadata) > 0 && !bytes.Equal(frame.Metadata, []byte("null")) {
		msg.Metadata = bytes.Clone(frame.Metadata)
	}
	return msg, nil
}

func resolveSender(explicit, frameType string) chat.SenderType {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "user", "client":
		return chat.SenderUser
	case "assistant", "ai":
		return chat.SenderAssistant
	case "system":
		return chat.SenderSystem
	}

	switch strings.ToLower(frameType) {
	case "", "message":
		return chat.SenderAssistant
	default:
		// connection, error, notification ...
		return chat.SenderSystem
	}
}

func parseTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
				return ts
			}
		}
		return fallback
	}

	var unix float64
	if err := json.Unmarshal(raw, &unix); err == nil && unix > 0 {
		// millisecond epochs are what browsers send
		if unix > 1e12 {
			return time.UnixMilli(int64(unix)).UTC()
		}
		sec := int64(unix)
		return time.Unix(sec, int64((unix-float64(sec))*1e9)).UTC()
	}
	return fallback
}

func encodeOutbound(msg chat.OutboundMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode outbound frame: %w", err)
	}
	return data, nil
}
