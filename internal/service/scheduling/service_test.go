package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/zhouzirui/assistant-desk/internal/model/scheduling"
)

func TestSuggestHourlySlotsFromNine(t *testing.T) {
	svc := NewService()
	preferred := time.Date(2024, 8, 20, 15, 30, 0, 0, time.UTC)

	resp, err := svc.Suggest(context.Background(), scheduling.Request{ClientID: "c-1", PreferredDate: preferred})
	if err != nil {
		t.Fatalf("Suggest err: %v", err)
	}

	if len(resp.AvailableSlots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(resp.AvailableSlots))
	}
	if got := resp.AvailableSlots[0].Time; got != "09:00 AM" {
		t.Fatalf("unexpected first slot %q", got)
	}
	if got := resp.AvailableSlots[4].Time; got != "01:00 PM" {
		t.Fatalf("unexpected last slot %q", got)
	}
	if len(resp.AISuggestions) != 1 || resp.AISuggestions[0].Time != "09:00 AM" || resp.AISuggestions[0].Score != 0.9 {
		t.Fatalf("unexpected suggestions %+v", resp.AISuggestions)
	}
	if resp.Message != "I found 5 available times. Would you like to book one?" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestSuggestRequiresDate(t *testing.T) {
	if _, err := NewService().Suggest(context.Background(), scheduling.Request{}); err != ErrPreferredDateRequired {
		t.Fatalf("expected ErrPreferredDateRequired, got %v", err)
	}
}
