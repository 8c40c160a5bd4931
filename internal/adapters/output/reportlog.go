// Package output provides report, persistence and observability adapters for
// the SIEM engine.
//
// This file implements the in-memory incident report log:
//   - Append-only, in generation order
//   - Epoch-guarded: Clear bumps the epoch, and a report generated for an
//     older epoch is discarded instead of reappearing after the clear
//
// Thread Safety: All methods are safe for concurrent access.
package output

import (
	"sync"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
)

// ReportLog stores generated incident reports for the query surface.
type ReportLog struct {
	reports     []*domain.IncidentReport // Generation order
	epoch       uint64                   // Incremented by Clear
	subscribers []ports.ReportSubscriber
	mu          sync.RWMutex
}

func NewReportLog() *ReportLog {
	return &ReportLog{
		reports: make([]*domain.IncidentReport, 0, 64),
	}
}

// Epoch returns the current epoch. Capture it when a report job is created
// and pass it back to Append.
func (l *ReportLog) Epoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epoch
}

// Append adds report if epoch is still current.
//
// Returns:
//   - true if the report was stored
//   - false if a Clear happened since epoch was captured
//
// Subscribers are notified after the report is stored, outside the lock.
func (l *ReportLog) Append(epoch uint64, report *domain.IncidentReport) bool {
	l.mu.Lock()
	if epoch != l.epoch {
		l.mu.Unlock()
		return false
	}
	l.reports = append(l.reports, report)
	subs := l.subscribers
	l.mu.Unlock()

	for _, sub := range subs {
		sub.OnReport(report)
	}
	return true
}

// Subscribe registers sub for reports appended from now on.
func (l *ReportLog) Subscribe(sub ports.ReportSubscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(append([]ports.ReportSubscriber(nil), l.subscribers...), sub)
}

// List returns a copy of all reports, oldest first.
func (l *ReportLog) List() []*domain.IncidentReport {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.IncidentReport, len(l.reports))
	copy(out, l.reports)
	return out
}

// Len returns the number of stored reports.
func (l *ReportLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.reports)
}

// Clear removes all reports and starts a new epoch.
func (l *ReportLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = make([]*domain.IncidentReport, 0, 64)
	l.epoch++
}
