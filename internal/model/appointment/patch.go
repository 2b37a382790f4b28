package appointment

import "time"

// Patch is a partial update. Nil fields are left untouched by Apply; Notes is
// the one optional field, so removing it needs ClearNotes.
type Patch struct {
	Status          *Status    `json:"status,omitempty"`
	ScheduledDate   *time.Time `json:"scheduled_date,omitempty"`
	ServiceType     *string    `json:"service_type,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	ClearNotes      bool       `json:"-"`
	ReminderSent    *bool      `json:"reminder_sent,omitempty"`
	Price           *float64   `json:"price,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// Apply returns a with every non-nil patch field replaced. The ID, ClientID
// and CreatedAt of a are never changed.
func (p Patch) Apply(a Appointment) Appointment {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.ScheduledDate != nil {
		a.ScheduledDate = *p.ScheduledDate
	}
	if p.ServiceType != nil {
		a.ServiceType = *p.ServiceType
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	switch {
	case p.Notes != nil:
		notes := *p.Notes
		a.Notes = &notes
	case p.ClearNotes:
		a.Notes = nil
	}
	if p.ReminderSent != nil {
		a.ReminderSent = *p.ReminderSent
	}
	if p.Price != nil {
		a.Price = *p.Price
	}
	if p.UpdatedAt != nil {
		a.UpdatedAt = *p.UpdatedAt
	}
	return a
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// PatchFromRecord builds a patch carrying every mutable field of a, used to
// fold a backend response into the local copy.
func PatchFromRecord(a Appointment) Patch {
	a = a.Clone()
	return Patch{
		Status:          &a.Status,
		ScheduledDate:   &a.ScheduledDate,
		ServiceType:     &a.ServiceType,
		DurationMinutes: &a.DurationMinutes,
		Notes:           a.Notes,
		ClearNotes:      a.Notes == nil,
		ReminderSent:    &a.ReminderSent,
		Price:           &a.Price,
		UpdatedAt:       &a.UpdatedAt,
	}
}

// StatusPatch is a shorthand for a patch that only moves the status.
func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}
