package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/assistant-desk/internal/model/chat"
	"github.com/zhouzirui/assistant-desk/internal/model/client"
)

type fakeModel struct {
	seen []*schema.Message
	err  error
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(fmt.Sprintf("%d messages, last: %s", len(input), input[len(input)-1].Content), nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (f *fakeModel) BindTools([]*schema.ToolInfo) error {
	return nil
}

func TestBuildHistoryMessagesKeepsLastTen(t *testing.T) {
	var messages []chat.Message
	for i := 0; i < 14; i++ {
		sender := "client"
		if i%2 == 1 {
			sender = "assistant"
		}
		messages = append(messages, chat.Message{Content: fmt.Sprintf("m%d", i), SenderType: sender})
	}

	history := buildHistoryMessages(messages)
	if len(history) != historyLimit {
		t.Fatalf("expected %d messages, got %d", historyLimit, len(history))
	}
	if history[0].Content != "m4" || history[0].Role != schema.User {
		t.Fatalf("unexpected first message %+v", history[0])
	}
	if history[9].Role != schema.Assistant {
		t.Fatalf("unexpected last role %s", history[9].Role)
	}
}

func TestServiceReplyUsesPromptAndHistory(t *testing.T) {
	fm := &fakeModel{}
	svc, err := NewServiceWithModel(context.Background(), fm)
	if err != nil {
		t.Fatalf("NewServiceWithModel err: %v", err)
	}

	reply, err := svc.Reply(context.Background(), Turn{
		ClientID: "c-1",
		Profile:  &client.Client{ID: "c-1", Name: "Ada"},
		History:  []chat.Message{{Content: "earlier", SenderType: "client"}},
		Message:  "book me tomorrow",
	})
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	if reply != "3 messages, last: book me tomorrow" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if fm.seen[0].Role != schema.System || !strings.Contains(fm.seen[0].Content, `"name":"Ada"`) {
		t.Fatalf("system prompt missing client info: %q", fm.seen[0].Content)
	}
}

func TestServiceReplyFallsBackOnModelError(t *testing.T) {
	svc, err := NewServiceWithModel(context.Background(), &fakeModel{err: errors.New("quota")})
	if err != nil {
		t.Fatalf("NewServiceWithModel err: %v", err)
	}

	reply, err := svc.Reply(context.Background(), Turn{Message: "hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	if reply != FallbackReply("hello") {
		t.Fatalf("unexpected fallback %q", reply)
	}
}

func TestFallbackReply(t *testing.T) {
	got, _ := Fallback{}.Reply(context.Background(), Turn{Message: "hi"})
	want := "I received your message: 'hi'. How can I help you schedule an appointment?"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
