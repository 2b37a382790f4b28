package client

import (
	"sync"
	"time"
)

// Store exposes client profiles to HTTP handlers.
type Store interface {
	List() []Client
	FindByID(id string) (Client, bool)
	FindOrCreate(id string) Client
}

// MemoryStore implements Store with an in-memory map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Client
	now   func() time.Time
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied clients.
func NewMemoryStore(items []Client) *MemoryStore {
	s := &MemoryStore{items: make(map[string]Client, len(items)), now: time.Now}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

// List returns every known client.
func (s *MemoryStore) List() []Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Client, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out
}

// FindByID looks up a client by identifier.
func (s *MemoryStore) FindByID(id string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// FindOrCreate returns the client, creating a demo profile on first use.
func (s *MemoryStore) FindOrCreate(id string) Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[id]; ok {
		return item
	}
	now := s.now().UTC()
	item := Client{
		ID:        id,
		Name:      "Demo User",
		Email:     id + "@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[id] = item
	return item
}

// Touch records the date of the client's latest booking.
func (s *MemoryStore) Touch(id string, appointmentDate time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return
	}
	if item.LastAppointmentDate == nil || appointmentDate.After(*item.LastAppointmentDate) {
		when := appointmentDate
		item.LastAppointmentDate = &when
		item.UpdatedAt = s.now().UTC()
		s.items[id] = item
	}
}
