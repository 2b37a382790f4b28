package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
)

// ComputeStats counts records per status over the whole collection. Every
// record lands in exactly one bucket, so the buckets always sum to Total.
func ComputeStats(records []appointment.Appointment) appointment.StatsSummary {
	stats := appointment.StatsSummary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case appointment.StatusConfirmed:
			stats.Confirmed++
		case appointment.StatusCancelled:
			stats.Cancelled++
		case appointment.StatusCompleted:
			stats.Completed++
		default:
			stats.Pending++
		}
	}
	return stats
}

// ComputeView derives the displayed list: status filter, then date filter
// relative to now in loc, then search, then a stable sort with the most
// recent scheduled date first. records is never modified.
func ComputeView(records []appointment.Appointment, criteria appointment.FilterCriteria, now time.Time, loc *time.Location) []appointment.Appointment {
	if loc == nil {
		loc = time.Local
	}
	criteria = criteria.Normalize()
	needle := strings.ToLower(criteria.Search)

	view := make([]appointment.Appointment, 0, len(records))
	for _, r := range records {
		if !matchStatus(r, criteria.Status) {
			continue
		}
		if !matchDate(r, criteria.Date, now, loc) {
			continue
		}
		if needle != "" && !matchSearch(r, needle) {
			continue
		}
		view = append(view, r.Clone())
	}

	sort.SliceStable(view, func(i, j int) bool {
		return view[i].ScheduledDate.After(view[j].ScheduledDate)
	})
	return view
}

func matchStatus(r appointment.Appointment, f appointment.StatusFilter) bool {
	return f == appointment.StatusFilterAll || appointment.Status(f) == r.Status
}

func matchDate(r appointment.Appointment, f appointment.DateFilter, now time.Time, loc *time.Location) bool {
	switch f {
	case appointment.DateFilterToday:
		return sameDay(r.ScheduledDate.In(loc), now.In(loc))
	case appointment.DateFilterUpcoming:
		return !r.ScheduledDate.Before(now)
	case appointment.DateFilterPast:
		return r.ScheduledDate.Before(now)
	default:
		return true
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// matchSearch expects needle already lower-cased.
func matchSearch(r appointment.Appointment, needle string) bool {
	if strings.Contains(strings.ToLower(r.ServiceType), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(r.ClientID), needle) {
		return true
	}
	return r.Notes != nil && strings.Contains(strings.ToLower(*r.Notes), needle)
}
