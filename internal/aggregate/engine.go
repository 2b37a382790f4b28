// Package aggregate owns the local appointment store and keeps the whole-store
// statistics and the filtered view consistent with it.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
	"github.com/zhouzirui/assistant-desk/internal/pubsub"
)

// ErrDuplicateID is returned by SetAppointments when two records share an id.
var ErrDuplicateID = errors.New("duplicate appointment id")

// Snapshot is an immutable copy of the derived state after one recompute.
type Snapshot struct {
	Stats    appointment.StatsSummary
	View     []appointment.Appointment
	Criteria appointment.FilterCriteria
}

func (s Snapshot) clone() Snapshot {
	s.View = cloneAll(s.View)
	return s
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock sets the clock used by the date filters.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the location that defines a calendar day for "today".
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine is the sole owner of the appointment store. Every mutation
// recomputes the derived state before returning, so a read issued after a
// mutation always observes it.
type Engine struct {
	now    func() time.Time
	loc    *time.Location
	logger zerolog.Logger

	// pubMu keeps snapshot publication in mutation order without holding mu
	// while subscribers run. Publishing never waits on a subscriber.
	pubMu sync.Mutex

	mu       sync.RWMutex
	records  []appointment.Appointment
	index    map[int64]int
	criteria appointment.FilterCriteria
	stats    appointment.StatsSummary
	view     []appointment.Appointment

	snapshots *pubsub.Broadcaster[Snapshot]
}

// NewEngine returns an empty engine with the default criteria.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:       time.Now,
		loc:       time.Local,
		logger:    log.With().Str("component", "aggregate").Logger(),
		index:     map[int64]int{},
		criteria:  appointment.DefaultCriteria(),
		view:      []appointment.Appointment{},
		snapshots: pubsub.NewBroadcaster(Snapshot.clone, pubsub.WithOverflow(pubsub.DropOldest)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	return e
}

// SetAppointments replaces the store wholesale. Records with an empty or
// unknown status are kept as pending.
func (e *Engine) SetAppointments(records []appointment.Appointment) error {
	next := make([]appointment.Appointment, 0, len(records))
	index := make(map[int64]int, len(records))
	for _, r := range records {
		if _, dup := index[r.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateID, r.ID)
		}
		if !r.Status.Valid() {
			e.logger.Warn().Int64("id", r.ID).Str("status", string(r.Status)).Msg("unknown status, treating as pending")
			r.Status = appointment.StatusPending
		}
		index[r.ID] = len(next)
		next = append(next, r.Clone())
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.mu.Lock()
	e.records = next
	e.index = index
	e.recomputeLocked(true)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug().Int("total", snap.Stats.Total).Int("visible", len(snap.View)).Msg("store replaced")
	e.snapshots.Publish(snap)
	return nil
}

// ApplyPatch updates the record with the given id in place. It reports false
// and leaves the store untouched when no record matches. An unknown status in
// the patch is dropped and the remaining fields are still applied.
func (e *Engine) ApplyPatch(id int64, patch appointment.Patch) bool {
	if patch.Status != nil && !patch.Status.Valid() {
		e.logger.Warn().Int64("id", id).Str("status", string(*patch.Status)).Msg("dropping unknown status from patch")
		patch.Status = nil
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.mu.Lock()
	pos, ok := e.index[id]
	if !ok {
		e.mu.Unlock()
		e.logger.Warn().Int64("id", id).Msg("patch miss: no local appointment")
		return false
	}
	e.records[pos] = patch.Apply(e.records[pos])
	e.recomputeLocked(true)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.snapshots.Publish(snap)
	return true
}

// SetFilterCriteria replaces the active criteria. Stats are unaffected.
func (e *Engine) SetFilterCriteria(criteria appointment.FilterCriteria) error {
	criteria = criteria.Normalize()
	if err := criteria.Validate(); err != nil {
		return err
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.mu.Lock()
	e.criteria = criteria
	e.recomputeLocked(false)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.snapshots.Publish(snap)
	return nil
}

// Refresh re-evaluates the date filters against the current clock.
func (e *Engine) Refresh() {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.mu.Lock()
	e.recomputeLocked(false)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.snapshots.Publish(snap)
}

// Stats returns the whole-store counts.
func (e *Engine) Stats() appointment.StatsSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// View returns a copy of the filtered, sorted list.
func (e *Engine) View() []appointment.Appointment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneAll(e.view)
}

// Criteria returns the active criteria.
func (e *Engine) Criteria() appointment.FilterCriteria {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.criteria
}

// Records returns a copy of the store in store order.
func (e *Engine) Records() []appointment.Appointment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneAll(e.records)
}

// Lookup returns a copy of the record with the given id.
func (e *Engine) Lookup(id int64) (appointment.Appointment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.index[id]
	if !ok {
		return appointment.Appointment{}, false
	}
	return e.records[pos].Clone(), true
}

// Snapshot returns stats, view and criteria taken together.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Subscribe streams a Snapshot after every recompute. Nothing is replayed;
// call Snapshot for the current state. A subscriber that falls behind loses
// its oldest pending snapshots, so the last one it receives is always current.
func (e *Engine) Subscribe(ctx context.Context, buffer int) *pubsub.Subscription[Snapshot] {
	return e.snapshots.Subscribe(ctx, buffer)
}

// Close ends every subscription.
func (e *Engine) Close() {
	e.snapshots.Close()
}

func (e *Engine) recomputeLocked(withStats bool) {
	if withStats {
		e.stats = ComputeStats(e.records)
	}
	e.view = ComputeView(e.records, e.criteria, e.now(), e.loc)
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{Stats: e.stats, View: cloneAll(e.view), Criteria: e.criteria}
}

func cloneAll(in []appointment.Appointment) []appointment.Appointment {
	out := make([]appointment.Appointment, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
