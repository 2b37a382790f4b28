package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
)

// Notifier delivers a text message to a connected client.
type Notifier interface {
	Notify(clientID, content string) bool
}

// ReminderMessage renders the reminder sent ahead of an appointment.
func ReminderMessage(a appointment.Appointment, now time.Time) string {
	hours := int(a.ScheduledDate.Sub(now).Hours())
	return fmt.Sprintf(`🔔 Appointment Reminder

You have an upcoming appointment:
• Service: %s
• Date: %s
• Time: %s
• Duration: %d minutes

This appointment is in %d hours.

If you need to reschedule or cancel, please let me know as soon as possible.`,
		a.ServiceType,
		a.ScheduledDate.Format("Monday, January 02, 2006"),
		a.ScheduledDate.Format("03:04 PM"),
		a.DurationMinutes,
		hours,
	)
}

// SendReminders notifies every client with a confirmed appointment inside
// window and returns how many reminders were delivered.
func (s *Service) SendReminders(ctx context.Context, notifier Notifier, window time.Duration) int {
	now := s.now().UTC()
	sent := 0
	for _, a := range s.DueReminders(ctx, now, window) {
		if notifier.Notify(a.ClientID, ReminderMessage(a, now)) {
			sent++
		}
		log.Info().Int64("id", a.ID).Str("client_id", a.ClientID).Msg("appointment reminder processed")
	}
	return sent
}

// RunReminders calls SendReminders every interval until ctx ends.
func (s *Service) RunReminders(ctx context.Context, notifier Notifier, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SendReminders(ctx, notifier, window); n > 0 {
				log.Info().Int("count", n).Msg("appointment reminders sent")
			}
		}
	}
}
