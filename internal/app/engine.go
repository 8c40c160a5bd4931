// Package app coordinates ingestion, brute-force detection, blocking and
// background incident report generation.
//
// The Engine is the single ingestion boundary called by every transport
// (HTTP handler, file tailer, demo generator). Report generation runs on the
// ReportDispatcher worker pool so that a slow text generator never delays an
// ingestion decision.
package app

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/adapters/detection"
	"github.com/Reddy-45/siem/internal/adapters/output"
	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
	"github.com/Reddy-45/siem/pkg/sanitize"
)

// DefaultEnrichmentTimeout bounds a single enrichment lookup on the
// ingestion path.
const DefaultEnrichmentTimeout = 5 * time.Second

// ReportJob is a fresh block waiting for its incident report. Epoch is the
// report-log epoch at block time.
type ReportJob struct {
	Trigger domain.Trigger    `json:"trigger"`
	Entry   domain.BlockEntry `json:"block"`
	Epoch   uint64            `json:"epoch"`
}

// ReportScheduler accepts report jobs without blocking. Implemented by
// ReportDispatcher.
type ReportScheduler interface {
	Schedule(job ReportJob) bool
}

// EngineOptions wires the engine's collaborators. Nil state objects are
// replaced with fresh defaults; nil Enricher, Scheduler and Recorder disable
// the corresponding stage.
type EngineOptions struct {
	Store     *detection.EventStore
	Registry  *detection.BlockRegistry
	Detector  *detection.BruteForceDetector
	Reports   ports.ReportLog
	Enricher  ports.Enricher
	Scheduler ReportScheduler
	Recorder  ports.EventRecorder
	Observers []ports.EngineObserver
	Metrics   *domain.EngineMetrics

	Clock             func() time.Time
	EnrichmentTimeout time.Duration
}

// Engine owns the detection state and implements the ingestion and
// management surface.
//
// Locking: mu serialises append, evaluate and block so that two concurrent
// events crossing the threshold for the same address produce exactly one
// block. Enrichment and report generation happen outside mu.
type Engine struct {
	store     *detection.EventStore
	registry  *detection.BlockRegistry
	detector  *detection.BruteForceDetector
	reports   ports.ReportLog
	enricher  ports.Enricher
	scheduler ReportScheduler
	recorder  ports.EventRecorder
	observers []ports.EngineObserver
	metrics   *domain.EngineMetrics

	clock         func() time.Time
	enrichTimeout time.Duration

	mu sync.Mutex
}

// NewEngine builds an engine from opts.
//
// Returns:
//   - error only if a default detector cannot be built
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil {
		opts.Store = detection.NewEventStore(detection.EventStoreConfig{})
	}
	if opts.Registry == nil {
		opts.Registry = detection.NewBlockRegistry()
	}
	if opts.Detector == nil {
		d, err := detection.NewBruteForceDetector(opts.Store, opts.Registry, detection.DefaultDetectionPolicy())
		if err != nil {
			return nil, err
		}
		opts.Detector = d
	}
	if opts.Reports == nil {
		opts.Reports = output.NewReportLog()
	}
	if opts.Metrics == nil {
		opts.Metrics = domain.NewEngineMetrics()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EnrichmentTimeout <= 0 {
		opts.EnrichmentTimeout = DefaultEnrichmentTimeout
	}

	e := &Engine{
		store:         opts.Store,
		registry:      opts.Registry,
		detector:      opts.Detector,
		reports:       opts.Reports,
		enricher:      opts.Enricher,
		scheduler:     opts.Scheduler,
		recorder:      opts.Recorder,
		observers:     opts.Observers,
		metrics:       opts.Metrics,
		clock:         opts.Clock,
		enrichTimeout: opts.EnrichmentTimeout,
	}
	e.ensureRetention(e.detector.Policy().Window)
	return e, nil
}

// Ingest runs one event through the pipeline.
//
// Flow:
//  1. Reject if the source address is blocked (before any other work)
//  2. Enrich the address (bounded, failures degrade to empty)
//  3. Under the engine lock: append, evaluate, block fresh triggers
//  4. Hand each fresh block to the report scheduler
//
// Ingest never fails: enrichment, persistence and report problems are
// logged and the decision stands.
func (e *Engine) Ingest(ctx context.Context, req domain.IngestRequest) domain.Decision {
	start := time.Now()

	if e.registry.IsBlocked(req.SourceAddress) {
		return e.reject(start)
	}

	enrichment := e.enrich(ctx, req.SourceAddress)

	e.mu.Lock()
	if e.registry.IsBlocked(req.SourceAddress) {
		e.mu.Unlock()
		return e.reject(start)
	}

	ev := e.store.Append(domain.NewEvent(req, enrichment, 0, e.clock()))
	triggers := e.detector.Evaluate(ev.ObservedAt)
	epoch := e.reports.Epoch()

	var blocks []domain.BlockEntry
	var jobs []ReportJob
	for _, trigger := range triggers {
		entry := trigger.BlockEntry(ev.ObservedAt)
		if !e.registry.Block(entry) {
			continue
		}
		blocks = append(blocks, entry)
		jobs = append(jobs, ReportJob{Trigger: trigger, Entry: entry, Epoch: epoch})
	}

	var recordErr error
	if e.recorder != nil {
		recordErr = e.recorder.Record(ev)
	}
	e.mu.Unlock()

	if recordErr != nil {
		log.Error().Err(recordErr).Uint64("seq", ev.Seq).Msg("Failed to persist event, in-memory state unaffected")
	}

	for _, entry := range blocks {
		e.metrics.IncrementBlocks()
		for _, o := range e.observers {
			o.ObserveBlock(entry)
		}
		log.Warn().
			Str("ip", entry.SourceAddress.String()).
			Int("attempts", entry.TriggerCount).
			Str("identity", sanitize.Line(entry.TriggerIdentity, sanitize.DefaultMaxFieldLength)).
			Msg("Brute force detected, source address blocked")
	}

	if e.scheduler != nil {
		for _, job := range jobs {
			e.scheduler.Schedule(job)
		}
	}

	e.metrics.IncrementIngested()
	e.observeDecision(domain.VerdictAccepted, start)
	return domain.Accepted(ev, blocks)
}

func (e *Engine) reject(start time.Time) domain.Decision {
	e.metrics.IncrementRejected()
	e.observeDecision(domain.VerdictRejected, start)
	return domain.RejectedBlocked()
}

func (e *Engine) observeDecision(verdict domain.Verdict, start time.Time) {
	seconds := time.Since(start).Seconds()
	for _, o := range e.observers {
		o.ObserveDecision(verdict, seconds)
	}
}

// enrich looks up addr under the enrichment timeout. Any failure degrades to
// an empty enrichment.
func (e *Engine) enrich(ctx context.Context, addr netip.Addr) domain.Enrichment {
	if e.enricher == nil {
		e.observeEnrichment("skipped")
		return domain.NoEnrichment()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.enrichTimeout)
	defer cancel()

	enrichment, err := e.enricher.Lookup(lookupCtx, addr.String())
	if err != nil {
		e.metrics.IncrementEnrichmentFailure()
		e.observeEnrichment("error")
		log.Debug().
			Err(err).
			Str("ip", addr.String()).
			Str("provider", e.enricher.Name()).
			Msg("Enrichment failed, continuing without metadata")
		return domain.NoEnrichment()
	}
	if enrichment.IsEmpty() {
		e.observeEnrichment("empty")
		return enrichment
	}
	e.observeEnrichment("ok")
	return enrichment
}

func (e *Engine) observeEnrichment(result string) {
	for _, o := range e.observers {
		o.ObserveEnrichment(result)
	}
}

// Events returns every stored event in insertion order.
func (e *Engine) Events() []domain.Event {
	return e.store.All()
}

// Blocked returns all block entries sorted by block time.
func (e *Engine) Blocked() []domain.BlockEntry {
	return e.registry.List()
}

// Reports returns all incident reports in generation order.
func (e *Engine) Reports() []*domain.IncidentReport {
	return e.reports.List()
}

func (e *Engine) IsBlocked(addr netip.Addr) bool {
	return e.registry.IsBlocked(addr)
}

// Unblock removes addr from the block registry.
//
// Returns:
//   - true if addr was blocked
//   - false if it was not (registry unchanged)
//
// Failures recorded before the unblock are forgiven so that the next event
// from addr does not re-trigger on history an operator already reviewed.
func (e *Engine) Unblock(addr netip.Addr) bool {
	e.mu.Lock()
	removed := e.registry.Unblock(addr)
	if removed {
		e.detector.Forgive(addr, e.store.LastSeq())
	}
	e.mu.Unlock()

	if !removed {
		return false
	}

	e.metrics.IncrementUnblocks()
	for _, o := range e.observers {
		o.ObserveUnblock()
	}
	log.Info().Str("ip", addr.String()).Msg("Source address unblocked")
	return true
}

// Clear empties events, blocks and reports as one step with respect to
// ingestion. Reports still being generated are discarded when they finish.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.store.Clear()
	e.registry.Clear()
	e.reports.Clear()
	e.detector.ResetForgiveness()
	var resetErr error
	if e.recorder != nil {
		resetErr = e.recorder.Reset()
	}
	e.mu.Unlock()

	if resetErr != nil {
		log.Error().Err(resetErr).Msg("Failed to reset persisted event log")
	}
	log.Info().Msg("All events, blocks and reports cleared")
}

// Policy returns the running detection policy.
func (e *Engine) Policy() detection.DetectionPolicy {
	return e.detector.Policy()
}

// SetPolicy swaps the detection policy. Stored events are kept; the store
// retention grows if the new window needs it.
func (e *Engine) SetPolicy(policy detection.DetectionPolicy) error {
	if err := e.detector.SetPolicy(policy); err != nil {
		return err
	}
	e.ensureRetention(policy.Window)
	return nil
}

func (e *Engine) ensureRetention(window time.Duration) {
	if r := e.store.Retention(); r > 0 && r < window {
		e.store.SetRetention(window)
	}
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() domain.MetricsSnapshot {
	return e.metrics.GetSnapshot()
}

// Stats returns the sizes the Prometheus gauges report.
func (e *Engine) Stats() (events, blocked int) {
	return e.store.Len(), e.registry.Len()
}
