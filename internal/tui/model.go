package tui

import (
	"container/heap"
	"net/netip"
	"sync"
	"time"

	"github.com/Reddy-45/siem/internal/domain"
)

const (
	ViewEvents = iota
	ViewSources
	ViewBlocked
	viewCount
)

var viewNames = [viewCount]string{"EVENTS", "SOURCES", "BLOCKED"}

// Model is the dashboard state derived from the latest snapshot.
type Model struct {
	ActiveView int

	Snapshot  Snapshot
	Sources   []*SourceEntry
	Sparkline []float64

	MaxSources     int
	MaxIdentities  int
	SparklineWidth int

	mu        sync.RWMutex
	lastSeq   uint64
	lastFetch time.Time
	rate      float64
	polls     int
	lastErr   error
	lastErrAt time.Time
}

// SourceEntry aggregates the stored events of one source address.
type SourceEntry struct {
	Address    netip.Addr
	Failures   int
	Events     int
	LastSeen   time.Time
	Identities []string
	Blocked    bool
	heapIndex  int
}

// sourceHeap orders by failures, then by most recent activity.
type sourceHeap []*SourceEntry

func (h sourceHeap) Len() int { return len(h) }
func (h sourceHeap) Less(i, j int) bool {
	if h[i].Failures != h[j].Failures {
		return h[i].Failures > h[j].Failures
	}
	return h[i].LastSeen.After(h[j].LastSeen)
}
func (h sourceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *sourceHeap) Push(x any) {
	item := x.(*SourceEntry)
	item.heapIndex = len(*h)
	*h = append(*h, item)
}

func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*h = old[:n-1]
	return item
}

func NewModel() *Model {
	return &Model{
		Sparkline:      make([]float64, 60),
		MaxSources:     25,
		MaxIdentities:  3,
		SparklineWidth: 60,
	}
}

// Apply installs a fresh snapshot, recomputing the per-source ranking and
// the ingest rate since the previous poll.
func (m *Model) Apply(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var maxSeq uint64
	if n := len(s.Events); n > 0 {
		maxSeq = s.Events[n-1].Seq
	}

	m.rate = 0
	if m.lastSeq > 0 && maxSeq >= m.lastSeq && !m.lastFetch.IsZero() {
		if elapsed := s.FetchedAt.Sub(m.lastFetch).Seconds(); elapsed > 0 {
			m.rate = float64(maxSeq-m.lastSeq) / elapsed
		}
	}
	m.lastSeq = maxSeq
	m.lastFetch = s.FetchedAt

	m.Sparkline = append(m.Sparkline[1:], m.rate)
	m.Snapshot = s
	m.Sources = m.rankSources(s)
	m.polls++
	m.lastErr = nil
}

func (m *Model) rankSources(s Snapshot) []*SourceEntry {
	blocked := make(map[netip.Addr]struct{}, len(s.Blocked))
	for _, entry := range s.Blocked {
		blocked[entry.SourceAddress] = struct{}{}
	}

	bySource := make(map[netip.Addr]*SourceEntry)
	h := &sourceHeap{}
	for _, ev := range s.Events {
		entry, ok := bySource[ev.SourceAddress]
		if !ok {
			_, isBlocked := blocked[ev.SourceAddress]
			entry = &SourceEntry{Address: ev.SourceAddress, Blocked: isBlocked}
			bySource[ev.SourceAddress] = entry
			heap.Push(h, entry)
		}
		entry.Events++
		if ev.IsFailure() {
			entry.Failures++
		}
		if ev.ObservedAt.After(entry.LastSeen) {
			entry.LastSeen = ev.ObservedAt
		}
		if ev.Identity != "" && len(entry.Identities) < m.MaxIdentities && !contains(entry.Identities, ev.Identity) {
			entry.Identities = append(entry.Identities, ev.Identity)
		}
	}
	heap.Init(h)

	n := m.MaxSources
	if n > h.Len() {
		n = h.Len()
	}
	top := make([]*SourceEntry, 0, n)
	for i := 0; i < n; i++ {
		top = append(top, heap.Pop(h).(*SourceEntry))
	}
	return top
}

// RecordError notes a failed poll. The previous snapshot stays on screen.
func (m *Model) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	m.lastErrAt = time.Now()
}

func (m *Model) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Model) Rate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rate
}

func (m *Model) LastFetch() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFetch
}

func (m *Model) GetSources() []*SourceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*SourceEntry, len(m.Sources))
	copy(result, m.Sources)
	return result
}

func (m *Model) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Snapshot
}

// FailedEvents counts failed events in the current snapshot.
func (m *Model) FailedEvents() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ev := range m.Snapshot.Events {
		if ev.IsFailure() {
			n++
		}
	}
	return n
}

// ReportFor returns the most recent report for addr, or nil.
func (m *Model) ReportFor(addr netip.Addr) *domain.IncidentReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.Snapshot.Reports) - 1; i >= 0; i-- {
		if r := m.Snapshot.Reports[i]; r != nil && r.SourceAddress == addr {
			return r
		}
	}
	return nil
}

// BlockFor returns the block entry for addr.
func (m *Model) BlockFor(addr netip.Addr) (domain.BlockEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, entry := range m.Snapshot.Blocked {
		if entry.SourceAddress == addr {
			return entry, true
		}
	}
	return domain.BlockEntry{}, false
}

func (m *Model) NextView() {
	m.ActiveView = (m.ActiveView + 1) % viewCount
}

func (m *Model) ViewName() string {
	return viewNames[m.ActiveView]
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
