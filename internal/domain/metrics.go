package domain

import (
	"sync/atomic"
	"time"
)

type MetricsSnapshot struct {
	EventsIngested     int64
	EventsRejected     int64
	BlocksIssued       int64
	Unblocks           int64
	ReportsGenerated   int64
	ReportsFailed      int64
	ReportsDropped     int64
	EnrichmentFailures int64
	Uptime             time.Duration
	StartTime          time.Time
}

// EngineMetrics holds the counters shared by the engine, the report
// dispatcher and the exporters.
type EngineMetrics struct {
	eventsIngested     atomic.Int64
	eventsRejected     atomic.Int64
	blocksIssued       atomic.Int64
	unblocks           atomic.Int64
	reportsGenerated   atomic.Int64
	reportsFailed      atomic.Int64
	reportsDropped     atomic.Int64
	enrichmentFailures atomic.Int64
	startTime          time.Time
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{startTime: time.Now()}
}

func (m *EngineMetrics) IncrementIngested()          { m.eventsIngested.Add(1) }
func (m *EngineMetrics) IncrementRejected()          { m.eventsRejected.Add(1) }
func (m *EngineMetrics) IncrementBlocks()            { m.blocksIssued.Add(1) }
func (m *EngineMetrics) IncrementUnblocks()          { m.unblocks.Add(1) }
func (m *EngineMetrics) IncrementReportsGenerated()  { m.reportsGenerated.Add(1) }
func (m *EngineMetrics) IncrementReportsFailed()     { m.reportsFailed.Add(1) }
func (m *EngineMetrics) IncrementReportsDropped()    { m.reportsDropped.Add(1) }
func (m *EngineMetrics) IncrementEnrichmentFailure() { m.enrichmentFailures.Add(1) }

func (m *EngineMetrics) GetSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		EventsIngested:     m.eventsIngested.Load(),
		EventsRejected:     m.eventsRejected.Load(),
		BlocksIssued:       m.blocksIssued.Load(),
		Unblocks:           m.unblocks.Load(),
		ReportsGenerated:   m.reportsGenerated.Load(),
		ReportsFailed:      m.reportsFailed.Load(),
		ReportsDropped:     m.reportsDropped.Load(),
		EnrichmentFailures: m.enrichmentFailures.Load(),
		Uptime:             time.Since(m.startTime),
		StartTime:          m.startTime,
	}
}
