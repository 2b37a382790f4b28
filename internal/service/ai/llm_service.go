package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/config"
	"github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/model/client"
)

const historyLimit = 10

// Turn is one user message plus the context needed to answer it.
type Turn struct {
	ClientID string
	Profile  *client.Client
	History  []chat.Message
	Message  string
}

// Responder produces the assistant reply for a turn.
type Responder interface {
	Reply(ctx context.Context, turn Turn) (string, error)
}

// Fallback answers every turn with FallbackReply.
type Fallback struct{}

func (Fallback) Reply(_ context.Context, turn Turn) (string, error) {
	return FallbackReply(turn.Message), nil
}

// Service encapsulates AI-powered chat functionality
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    zerolog.Logger
}

// NewService creates a new AI service instance backed by the Ark model in cfg.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel builds the prompt chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
		logger:    log.With().Str("component", "ai").Logger(),
	}, nil
}

// Reply runs the chain. On model failure it logs and returns FallbackReply
// together with the error so callers can still answer the client.
func (s *Service) Reply(ctx context.Context, turn Turn) (string, error) {
	input := map[string]any{
		"system":  BuildSystemPrompt(turn.Profile),
		"history": buildHistoryMessages(turn.History),
		"query":   turn.Message,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", turn.ClientID).Msg("chat model failed")
		return FallbackReply(turn.Message), fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Debug().Str("client_id", turn.ClientID).Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

// buildHistoryMessages keeps the last historyLimit client/assistant turns.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.SenderType {
		case "client", "user":
			history = append(history, schema.UserMessage(msg.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
