package appointment

import (
	"fmt"
	"strings"
)

// StatusFilter selects appointments by status; StatusFilterAll keeps everything.
type StatusFilter string

const StatusFilterAll StatusFilter = "all"

// DateFilter selects appointments relative to the current time.
type DateFilter string

const (
	DateFilterAll      DateFilter = "all"
	DateFilterToday    DateFilter = "today"
	DateFilterUpcoming DateFilter = "upcoming"
	DateFilterPast     DateFilter = "past"
)

// FilterCriteria is the active status/date/search configuration of the
// appointment view. The zero value keeps every record.
type FilterCriteria struct {
	Status StatusFilter `json:"status"`
	Date   DateFilter   `json:"date"`
	Search string       `json:"search"`
}

// DefaultCriteria keeps every record.
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{Status: StatusFilterAll, Date: DateFilterAll}
}

// Normalize maps empty filters to "all" and trims the search term.
func (c FilterCriteria) Normalize() FilterCriteria {
	if c.Status == "" {
		c.Status = StatusFilterAll
	}
	if c.Date == "" {
		c.Date = DateFilterAll
	}
	c.Search = strings.TrimSpace(c.Search)
	return c
}

// Validate rejects unknown status or date filters.
func (c FilterCriteria) Validate() error {
	c = c.Normalize()
	if c.Status != StatusFilterAll && !Status(c.Status).Valid() {
		return fmt.Errorf("invalid status filter %q", c.Status)
	}
	switch c.Date {
	case DateFilterAll, DateFilterToday, DateFilterUpcoming, DateFilterPast:
	default:
		return fmt.Errorf("invalid date filter %q", c.Date)
	}
	return nil
}

// StatsSummary holds per-status counts over the whole store.
type StatsSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
}

// Count returns the bucket for s.
func (s StatsSummary) Count(status Status) int {
	switch status {
	case StatusPending:
		return s.Pending
	case StatusConfirmed:
		return s.Confirmed
	case StatusCancelled:
		return s.Cancelled
	case StatusCompleted:
		return s.Completed
	default:
		return 0
	}
}
