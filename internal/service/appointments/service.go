// Package appointments keeps the local aggregation engine in step with the
// backend: every command goes to the backend first and only its answer is
// folded into the engine.
package appointments

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/aggregate"
	"github.com/zhouzirui/assistant-desk/internal/backend"
	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
)

// Backend is the subset of backend.Client used here.
type Backend interface {
	ListAppointments(ctx context.Context, filter backend.ListFilter) ([]appointment.Appointment, error)
	CreateAppointment(ctx context.Context, in appointment.CreateInput) (appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, id int64, update backend.Update) (appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
}

// Service coordinates backend commands with the local engine.
type Service struct {
	backend Backend
	engine  *aggregate.Engine
	logger  zerolog.Logger

	// last filter used by Load, reused by Delete's reload
	filter backend.ListFilter
}

// NewService binds a backend to an engine.
func NewService(b Backend, engine *aggregate.Engine) *Service {
	return &Service{
		backend: b,
		engine:  engine,
		logger:  log.With().Str("component", "appointments").Logger(),
	}
}

// Engine exposes the engine for reads and subscriptions.
func (s *Service) Engine() *aggregate.Engine {
	return s.engine
}

// Load fetches appointments and replaces the local store.
func (s *Service) Load(ctx context.Context, filter backend.ListFilter) error {
	records, err := s.backend.ListAppointments(ctx, filter)
	if err != nil {
		return err
	}
	if err := s.engine.SetAppointments(records); err != nil {
		return err
	}
	s.filter = filter
	s.logger.Info().Int("count", len(records)).Str("client_id", filter.ClientID).Msg("appointments loaded")
	return nil
}

// Create books an appointment and appends the created record locally.
func (s *Service) Create(ctx context.Context, in appointment.CreateInput) (appointment.Appointment, error) {
	created, err := s.backend.CreateAppointment(ctx, in)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if err := s.engine.SetAppointments(append(s.engine.Records(), created)); err != nil {
		return created, err
	}
	return created, nil
}

func (s *Service) Confirm(ctx context.Context, id int64) (appointment.Appointment, error) {
	return s.setStatus(ctx, id, appointment.StatusConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id int64) (appointment.Appointment, error) {
	return s.setStatus(ctx, id, appointment.StatusCancelled)
}

func (s *Service) Complete(ctx context.Context, id int64) (appointment.Appointment, error) {
	return s.setStatus(ctx, id, appointment.StatusCompleted)
}

// Reschedule moves an appointment to a new date.
func (s *Service) Reschedule(ctx context.Context, id int64, when time.Time) (appointment.Appointment, error) {
	return s.update(ctx, id, backend.Update{ScheduledDate: &when})
}

// Delete removes the appointment on the backend and reloads the store.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.backend.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	return s.Load(ctx, s.filter)
}

func (s *Service) setStatus(ctx context.Context, id int64, status appointment.Status) (appointment.Appointment, error) {
	return s.update(ctx, id, backend.Update{Status: &status})
}

func (s *Service) update(ctx context.Context, id int64, update backend.Update) (appointment.Appointment, error) {
	updated, err := s.backend.UpdateAppointment(ctx, id, update)
	if err != nil {
		return appointment.Appointment{}, err
	}
	s.engine.ApplyPatch(id, appointment.PatchFromRecord(updated))
	return updated, nil
}
