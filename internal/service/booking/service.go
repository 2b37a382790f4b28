package booking

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/assistant-desk/internal/aggregate"
	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
)

var (
	ErrClientRequired      = errors.New("client_id is required")
	ErrServiceRequired     = errors.New("service_type is required")
	ErrDateRequired        = errors.New("scheduled_date is required")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

const defaultDuration = 60

// Query filters List. Empty fields match everything.
type Query struct {
	ClientID string
	Status   appointment.Status
}

// Update carries the mutable fields accepted by PATCH.
type Update struct {
	Status        *appointment.Status `json:"status,omitempty"`
	ScheduledDate *time.Time          `json:"scheduled_date,omitempty"`
}

// Service 预约的内存存储，ID 自增
type Service struct {
	mu     sync.RWMutex
	items  map[int64]appointment.Appointment
	nextID int64
	now    func() time.Time
}

// NewService bootstraps an empty in-memory appointment book.
func NewService() *Service {
	return &Service{
		items: make(map[int64]appointment.Appointment),
		now:   time.Now,
	}
}

// Create validates the input and stores a pending appointment.
func (s *Service) Create(_ context.Context, in appointment.CreateInput) (appointment.Appointment, error) {
	if strings.TrimSpace(in.ClientID) == "" {
		return appointment.Appointment{}, ErrClientRequired
	}
	if strings.TrimSpace(in.ServiceType) == "" {
		return appointment.Appointment{}, ErrServiceRequired
	}
	if in.ScheduledDate.IsZero() {
		return appointment.Appointment{}, ErrDateRequired
	}
	duration := in.DurationMinutes
	if duration <= 0 {
		duration = defaultDuration
	}

	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	item := appointment.Appointment{
		ID:              s.nextID,
		ClientID:        in.ClientID,
		ServiceType:     in.ServiceType,
		ScheduledDate:   in.ScheduledDate.UTC(),
		DurationMinutes: duration,
		Status:          appointment.StatusPending,
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	item = item.Clone()
	s.items[item.ID] = item
	return item.Clone(), nil
}

// List returns matching appointments ordered by id.
func (s *Service) List(_ context.Context, q Query) []appointment.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]appointment.Appointment, 0, len(s.items))
	for _, item := range s.items {
		if q.ClientID != "" && item.ClientID != q.ClientID {
			continue
		}
		if q.Status != "" && item.Status != q.Status {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one appointment.
func (s *Service) Get(_ context.Context, id int64) (appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return appointment.Appointment{}, ErrAppointmentNotFound
	}
	return item.Clone(), nil
}

// Update applies status and/or date changes.
func (s *Service) Update(_ context.Context, id int64, u Update) (appointment.Appointment, error) {
	if u.Status != nil && !u.Status.Valid() {
		return appointment.Appointment{}, ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return appointment.Appointment{}, ErrAppointmentNotFound
	}
	now := s.now().UTC()
	patch := appointment.Patch{Status: u.Status, UpdatedAt: &now}
	if u.ScheduledDate != nil {
		when := u.ScheduledDate.UTC()
		patch.ScheduledDate = &when
		// a moved appointment needs a fresh reminder
		sent := false
		patch.ReminderSent = &sent
	}
	item = patch.Apply(item)
	s.items[id] = item
	return item.Clone(), nil
}

// Delete removes an appointment.
func (s *Service) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(s.items, id)
	return nil
}

// Stats counts every stored appointment per status.
func (s *Service) Stats(ctx context.Context) appointment.StatsSummary {
	return aggregate.ComputeStats(s.List(ctx, Query{}))
}

// DueReminders returns confirmed appointments starting within window of now
// that have not been reminded yet, and marks them as reminded.
func (s *Service) DueReminders(_ context.Context, now time.Time, window time.Duration) []appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []appointment.Appointment
	for id, item := range s.items {
		if item.Status != appointment.StatusConfirmed || item.ReminderSent {
			continue
		}
		if item.ScheduledDate.Before(now) || item.ScheduledDate.After(now.Add(window)) {
			continue
		}
		item.ReminderSent = true
		s.items[id] = item
		due = append(due, item.Clone())
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledDate.Before(due[j].ScheduledDate) })
	return due
}
