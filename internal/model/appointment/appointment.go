package appointment

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Statuses lists every known status in display order.
func Statuses() []Status {
	return []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// Appointment mirrors the backend appointment record.
type Appointment struct {
	ID              int64     `json:"id"`
	ClientID        string    `json:"client_id"`
	ServiceType     string    `json:"service_type"`
	ScheduledDate   time.Time `json:"scheduled_date"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	Notes           *string   `json:"notes"`
	ReminderSent    bool      `json:"reminder_sent"`
	Price           float64   `json:"price"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EndsAt returns the end of the appointment slot.
func (a Appointment) EndsAt() time.Time {
	return a.ScheduledDate.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Clone returns a copy that shares no pointers with a.
func (a Appointment) Clone() Appointment {
	if a.Notes != nil {
		notes := *a.Notes
		a.Notes = &notes
	}
	return a
}

// CreateInput carries the fields accepted when booking a new appointment.
type CreateInput struct {
	ClientID        string    `json:"client_id"`
	ServiceType     string    `json:"service_type"`
	ScheduledDate   time.Time `json:"scheduled_date"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           *string   `json:"notes,omitempty"`
}
