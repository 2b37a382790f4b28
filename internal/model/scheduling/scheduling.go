package scheduling

import (
	"encoding/json"
	"time"
)

// Request asks the backend for available slots around a preferred date.
type Request struct {
	ClientID        string          `json:"client_id"`
	ServiceType     string          `json:"service_type"`
	PreferredDate   time.Time       `json:"preferred_date"`
	DurationMinutes int             `json:"duration_minutes"`
	Preferences     json.RawMessage `json:"preferences,omitempty"`
}

// Slot is one bookable time.
type Slot struct {
	Time      string    `json:"time"`
	DateTime  time.Time `json:"datetime"`
	Available bool      `json:"available"`
}

// Suggestion ranks a slot for the client.
type Suggestion struct {
	Time   string  `json:"time"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
}

// Response lists available slots and the assistant's picks.
type Response struct {
	AvailableSlots []Slot       `json:"available_slots"`
	AISuggestions  []Suggestion `json:"ai_suggestions"`
	Message        string       `json:"message"`
}
