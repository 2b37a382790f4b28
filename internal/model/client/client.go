package client

import (
	"encoding/json"
	"time"
)

// Client is the business customer profile served by the backend.
type Client struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Email               string          `json:"email"`
	Phone               *string         `json:"phone,omitempty"`
	Preferences         json.RawMessage `json:"preferences,omitempty"`
	LastAppointmentDate *time.Time      `json:"last_appointment_date,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
