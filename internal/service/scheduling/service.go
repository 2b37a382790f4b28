package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/assistant-desk/internal/model/scheduling"
)

var ErrPreferredDateRequired = errors.New("preferred_date is required")

const (
	openingHour = 9
	slotCount   = 5
	slotFormat  = "03:04 PM"
)

// Service proposes appointment slots.
type Service struct{}

// NewService creates the slot planner.
func NewService() *Service {
	return &Service{}
}

// Suggest returns slotCount hourly slots from opening time on the preferred
// day and recommends the first one.
func (s *Service) Suggest(_ context.Context, req scheduling.Request) (scheduling.Response, error) {
	if req.PreferredDate.IsZero() {
		return scheduling.Response{}, ErrPreferredDateRequired
	}

	d := req.PreferredDate
	start := time.Date(d.Year(), d.Month(), d.Day(), openingHour, 0, 0, 0, d.Location())

	slots := make([]scheduling.Slot, 0, slotCount)
	for i := 0; i < slotCount; i++ {
		at := start.Add(time.Duration(i) * time.Hour)
		slots = append(slots, scheduling.Slot{
			Time:      at.Format(slotFormat),
			DateTime:  at,
			Available: true,
		})
	}

	return scheduling.Response{
		AvailableSlots: slots,
		AISuggestions: []scheduling.Suggestion{
			{Time: slots[0].Time, Reason: "First available slot", Score: 0.9},
		},
		Message: fmt.Sprintf("I found %d available times. Would you like to book one?", len(slots)),
	}, nil
}
