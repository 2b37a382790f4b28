package chat

import "time"

// Conversation status values used by the backend.
const (
	ConversationActive   = "active"
	ConversationEnded    = "ended"
	ConversationOutreach = "outreach"
)

// Conversation groups the messages exchanged with one client.
type Conversation struct {
	ID          int64      `json:"id"`
	ClientID    string     `json:"client_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Status      string     `json:"status"`
	InitiatedBy string     `json:"initiated_by"`
	Summary     *string    `json:"summary,omitempty"`
}
