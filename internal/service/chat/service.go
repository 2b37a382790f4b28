package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/assistant-desk/internal/model/chat"
)

var (
	ErrClientRequired       = errors.New("client id is required")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Sender types persisted with each message.
const (
	SenderClient    = "client"
	SenderAssistant = "assistant"
)

// Service encapsulates conversation state management.
type Service struct {
	mu            sync.RWMutex
	conversations map[int64]chat.Conversation
	messages      map[int64][]chat.Message
	active        map[string]int64
	nextConvID    int64
	nextMsgID     int64
	now           func() time.Time
}

// NewService bootstraps the in-memory chat service.
func NewService() *Service {
	return &Service{
		conversations: make(map[int64]chat.Conversation),
		messages:      make(map[int64][]chat.Message),
		active:        make(map[string]int64),
		now:           time.Now,
	}
}

// ActiveConversation returns the client's active conversation, starting one
// if none is open.
func (s *Service) ActiveConversation(_ context.Context, clientID string) (chat.Conversation, error) {
	if clientID == "" {
		return chat.Conversation{}, ErrClientRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.active[clientID]; ok {
		return s.conversations[id], nil
	}

	s.nextConvID++
	conv := chat.Conversation{
		ID:          s.nextConvID,
		ClientID:    clientID,
		StartedAt:   s.now().UTC(),
		Status:      chat.ConversationActive,
		InitiatedBy: SenderClient,
	}
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.Message, 0, 16)
	s.active[clientID] = conv.ID
	return conv, nil
}

// EndConversation closes the client's active conversation, if any.
func (s *Service) EndConversation(_ context.Context, clientID string) (chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[clientID]
	if !ok {
		return chat.Conversation{}, false
	}
	delete(s.active, clientID)

	conv := s.conversations[id]
	ended := s.now().UTC()
	conv.EndedAt = &ended
	conv.Status = chat.ConversationEnded
	s.conversations[id] = conv
	return conv, true
}

// SaveMessage appends a message to the conversation history.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[message.ConversationID]; !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	s.nextMsgID++
	message.ID = s.nextMsgID
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now().UTC()
	}

	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)
	return message, nil
}

// GetConversation retrieves a conversation by identifier.
func (s *Service) GetConversation(_ context.Context, id int64) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// ListConversations returns the client's conversations, newest first. A
// limit of 0 returns all of them.
func (s *Service) ListConversations(_ context.Context, clientID string, limit int) []chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.ClientID == clientID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LoadTranscript returns stored messages for the conversation in order.
func (s *Service) LoadTranscript(_ context.Context, conversationID int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
