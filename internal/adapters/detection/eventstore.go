// Package detection implements the brute-force detection core.
//
// This file provides the EventStore: an append-only, time-ordered buffer of
// ingested events that every detection pass scans.
//
// Memory Management:
//   - Events older than the retention horizon are evicted on append
//   - A hard cap on stored events evicts the oldest first
//   - The backing slice is compacted once more than half of it is dead
//
// Thread Safety: All methods are safe for concurrent access. Readers receive
// copies, so a scan never observes a slice that is being appended to.
package detection

import (
	"sort"
	"sync"
	"time"

	"github.com/Reddy-45/siem/internal/domain"
)

const (
	defaultMaxEvents  = 100000
	compactMinDeadLen = 1024
)

// EventStoreConfig configures retention of the event store.
type EventStoreConfig struct {
	Retention time.Duration // Evict events older than this (0 keeps everything)
	MaxEvents int           // Hard cap on stored events (default: 100000)
}

// EventStore holds events in insertion order with non-decreasing ObservedAt.
type EventStore struct {
	events    []domain.Event // events[head:] are live
	head      int            // Index of the oldest live event
	seq       uint64         // Last assigned sequence number
	retention time.Duration
	maxEvents int
	mu        sync.RWMutex
}

// NewEventStore creates an empty store.
//
// Parameters:
//   - config: Retention horizon and hard cap
//
// Returns:
//   - EventStore ready for Append
func NewEventStore(config EventStoreConfig) *EventStore {
	if config.MaxEvents <= 0 {
		config.MaxEvents = defaultMaxEvents
	}
	return &EventStore{
		events:    make([]domain.Event, 0, 1024),
		retention: config.Retention,
		maxEvents: config.MaxEvents,
	}
}

// Append stores an event and returns the stored copy.
//
// Behavior:
//   - Assigns the next sequence number
//   - Clamps ObservedAt to the newest stored timestamp so insertion order
//     and time order always agree
//   - Evicts events that fell out of the retention horizon or the cap
//
// Complexity: O(1) amortized
func (s *EventStore) Append(ev domain.Event) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.events); n > s.head {
		if last := s.events[n-1].ObservedAt; ev.ObservedAt.Before(last) {
			ev.ObservedAt = last
		}
	}

	s.seq++
	ev.Seq = s.seq
	s.events = append(s.events, ev)

	s.evictLocked(ev.ObservedAt)
	return ev
}

// evictLocked advances head past expired events. Caller holds s.mu.
func (s *EventStore) evictLocked(now time.Time) {
	if s.retention > 0 {
		cutoff := now.Add(-s.retention)
		for s.head < len(s.events) && s.events[s.head].ObservedAt.Before(cutoff) {
			s.events[s.head] = domain.Event{}
			s.head++
		}
	}

	for len(s.events)-s.head > s.maxEvents {
		s.events[s.head] = domain.Event{}
		s.head++
	}

	if s.head >= compactMinDeadLen && s.head > len(s.events)/2 {
		live := make([]domain.Event, len(s.events)-s.head, cap(s.events))
		copy(live, s.events[s.head:])
		s.events = live
		s.head = 0
	}
}

// EventsWithin returns every event with now - ObservedAt <= window, in
// insertion order.
//
// Parameters:
//   - window: Sliding window length
//   - now: Anchor of the window
//
// Complexity: O(log n + k) where k is the number of returned events
func (s *EventStore) EventsWithin(window time.Duration, now time.Time) []domain.Event {
	cutoff := now.Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	live := s.events[s.head:]
	start := sort.Search(len(live), func(i int) bool {
		return !live[i].ObservedAt.Before(cutoff)
	})

	out := make([]domain.Event, 0, len(live)-start)
	for _, ev := range live[start:] {
		if ev.ObservedAt.After(now) {
			break
		}
		out = append(out, ev)
	}
	return out
}

// All returns a copy of every stored event in insertion order.
func (s *EventStore) All() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, len(s.events)-s.head)
	copy(out, s.events[s.head:])
	return out
}

// Restore replaces the contents with previously persisted events. Events are
// sorted by ObservedAt and renumbered.
func (s *EventStore) Restore(events []domain.Event) {
	sorted := make([]domain.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = s.events[:0]
	s.head = 0
	s.seq = 0
	for _, ev := range sorted {
		s.seq++
		ev.Seq = s.seq
		s.events = append(s.events, ev)
	}
	if n := len(s.events); n > 0 {
		s.evictLocked(s.events[n-1].ObservedAt)
	}
}

// LastSeq returns the sequence number of the most recent Append.
func (s *EventStore) LastSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Len returns the number of live events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events) - s.head
}

// SetRetention changes the eviction horizon. Takes effect on the next Append.
func (s *EventStore) SetRetention(retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = retention
}

// Retention returns the current eviction horizon.
func (s *EventStore) Retention() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

// Clear empties the store atomically with respect to Append and scans.
// Sequence numbers keep increasing across clears.
func (s *EventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]domain.Event, 0, 1024)
	s.head = 0
}
