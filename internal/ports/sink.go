// Package ports defines the primary and secondary port interfaces following
// hexagonal architecture (ports and adapters pattern).
//
// The detection core (internal/app and internal/adapters/detection) depends only
// on these interfaces; concrete enrichment providers, text generators, sinks and
// event sources live in internal/adapters/.
package ports

import (
	"context"

	"github.com/Reddy-45/siem/internal/domain"
)

// ReportSink receives incident reports after they have been generated.
//
// Implementations:
//   - JSONReportSink: appends reports as JSON lines to a file or stdout
//   - BoltReportArchive: stores reports in an embedded bbolt database
//
// Thread Safety: Implementations MUST be safe for concurrent Write() calls.
type ReportSink interface {
	// Write persists a single report.
	//
	// Returns:
	//   - nil on success
	//   - Error if the write fails (the caller logs it; the report stays in
	//     the in-memory report log regardless)
	Write(ctx context.Context, report *domain.IncidentReport) error

	// Close flushes pending data and releases resources.
	Close() error
}

// ReportSubscriber is notified synchronously after a report is appended to
// the report log. Implementations should return quickly.
type ReportSubscriber interface {
	OnReport(report *domain.IncidentReport)
}

// ReportLog is the append-only, in-memory record of generated reports.
//
// Append is gated by an epoch: Clear advances the epoch, and a report whose
// generation started under an older epoch is rejected so that it cannot
// reappear after the operator wiped state.
type ReportLog interface {
	Epoch() uint64
	Append(epoch uint64, report *domain.IncidentReport) bool
	List() []*domain.IncidentReport
	Clear()
}
