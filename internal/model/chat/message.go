package chat

import (
	"bytes"
	"encoding/json"
	"time"
)

// SenderType identifies who authored a chat message.
type SenderType string

const (
	SenderUser      SenderType = "user"
	SenderSystem    SenderType = "system"
	SenderAssistant SenderType = "assistant"
)

// InboundMessage is a decoded frame delivered to message subscribers.
type InboundMessage struct {
	Type       string          `json:"type,omitempty"`
	Content    string          `json:"content"`
	SenderType SenderType      `json:"sender_type"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Clone returns a copy whose metadata does not alias m.
func (m InboundMessage) Clone() InboundMessage {
	if m.Metadata != nil {
		m.Metadata = bytes.Clone(m.Metadata)
	}
	return m
}

// OutboundMessage is the frame written for every sent chat line.
type OutboundMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Message persists individual turns of a conversation.
type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Content        string          `json:"content"`
	SenderType     string          `json:"sender_type"`
	Timestamp      time.Time       `json:"timestamp"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}
