package app

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
)

// ReportDispatcher generates incident reports on a fixed pool of worker
// goroutines, detached from the ingestion path.
//
// Features:
//   - Non-blocking Schedule: a full queue overflows to disk or drops the job
//   - Per-job timeout around text generation
//   - Epoch-guarded append so that reports finishing after a clear are discarded
//   - Quarantine for jobs causing panics, with automatic worker restart
//
// Thread Safety: All public methods are safe for concurrent access.
type ReportDispatcher struct {
	workerCount int
	queue       chan ReportJob
	queueSize   int
	jobTimeout  time.Duration

	generator ports.TextGenerator
	reports   ports.ReportLog
	sinks     []ports.ReportSink
	observers []ports.EngineObserver
	metrics   *domain.EngineMetrics
	clock     func() time.Time

	overflow   *OverflowWriter
	overflowed atomic.Int64
	quarantine *QuarantineWriter

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
	running  bool
	mu       sync.RWMutex // Protects running, sinks and observers; held while sending to queue
}

// ReportDispatcherConfig defines dispatcher options.
type ReportDispatcherConfig struct {
	WorkerCount    int           // Worker goroutines (default: 2)
	QueueSize      int           // Pending job buffer (default: 256)
	JobTimeout     time.Duration // Bound on one generation (default: 60s)
	OverflowPath   string        // Jobs that do not fit the queue (empty drops them)
	QuarantinePath string        // Jobs that panicked (empty disables)
}

// DefaultReportDispatcherConfig returns the production defaults.
func DefaultReportDispatcherConfig() ReportDispatcherConfig {
	return ReportDispatcherConfig{
		WorkerCount: 2,
		QueueSize:   256,
		JobTimeout:  60 * time.Second,
	}
}

// NewReportDispatcher creates a dispatcher ready for Start.
//
// Parameters:
//   - config: Pool configuration
//   - generator: Narrative synthesis backend
//   - reports: Report log receiving generated reports
//   - metrics: Shared engine counters (nil allocates private counters)
func NewReportDispatcher(config ReportDispatcherConfig, generator ports.TextGenerator, reports ports.ReportLog, metrics *domain.EngineMetrics) *ReportDispatcher {
	defaults := DefaultReportDispatcherConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if metrics == nil {
		metrics = domain.NewEngineMetrics()
	}

	d := &ReportDispatcher{
		workerCount: config.WorkerCount,
		queue:       make(chan ReportJob, config.QueueSize),
		queueSize:   config.QueueSize,
		jobTimeout:  config.JobTimeout,
		generator:   generator,
		reports:     reports,
		metrics:     metrics,
		clock:       time.Now,
		stopChan:    make(chan struct{}),
	}

	if config.OverflowPath != "" {
		overflow, err := NewOverflowWriter(config.OverflowPath)
		if err != nil {
			log.Error().Err(err).Str("path", config.OverflowPath).Msg("Failed to create overflow writer")
		} else {
			d.overflow = overflow
		}
	}

	if config.QuarantinePath != "" {
		quarantine, err := NewQuarantineWriter(config.QuarantinePath)
		if err != nil {
			log.Error().Err(err).Str("path", config.QuarantinePath).Msg("Failed to create quarantine writer")
		} else {
			d.quarantine = quarantine
		}
	}

	return d
}

// Start launches the workers. Idempotent.
func (d *ReportDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	log.Info().
		Int("workers", d.workerCount).
		Int("queue_size", d.queueSize).
		Str("generator", d.generator.Name()).
		Msg("Report dispatcher started")
}

func (d *ReportDispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	var current *ReportJob

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Int("worker_id", id).
				Msg("Report worker panic recovered")

			if d.quarantine != nil && d.quarantine.Enabled() {
				if err := d.quarantine.WriteToxicJob(id, r, debug.Stack(), current); err != nil {
					log.Error().Err(err).Int("worker_id", id).Msg("Failed to quarantine toxic report job")
				}
			}
			d.recordResult("failed")

			d.wg.Add(1)
			go d.worker(ctx, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case job, ok := <-d.queue:
			if !ok {
				return
			}
			current = &job
			d.process(ctx, job)
			current = nil
		}
	}
}

// process generates, stores and fans out one report. Failures are logged
// and dropped; the block that caused the job is already final.
func (d *ReportDispatcher) process(ctx context.Context, job ReportJob) {
	ip := job.Trigger.SourceAddress.String()
	enrichment := job.Trigger.EnrichmentSnapshot()

	genCtx, cancel := context.WithTimeout(ctx, d.jobTimeout)
	narrative, err := d.generator.Generate(genCtx, ComposePrompt(job.Trigger, enrichment))
	cancel()
	if err != nil {
		d.recordResult("failed")
		log.Error().
			Err(err).
			Str("ip", ip).
			Str("generator", d.generator.Name()).
			Msg("Incident report generation failed, report dropped")
		return
	}

	report := domain.NewIncidentReport(job.Trigger, enrichment, narrative, d.generator.Name(), d.clock())
	if !d.reports.Append(job.Epoch, report) {
		d.recordResult("discarded")
		log.Info().Str("ip", ip).Msg("State cleared while report was generating, report discarded")
		return
	}
	d.recordResult("generated")
	log.Info().
		Str("ip", ip).
		Str("report_id", report.ID).
		Int("attempts", report.AttemptCount).
		Msg("Incident report generated")

	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range sinks {
		if err := sink.Write(sinkCtx, report); err != nil {
			log.Error().Err(err).Str("report_id", report.ID).Msg("Report sink write failed")
		}
	}
}

func (d *ReportDispatcher) recordResult(result string) {
	switch result {
	case "generated":
		d.metrics.IncrementReportsGenerated()
	case "failed":
		d.metrics.IncrementReportsFailed()
	case "dropped":
		d.metrics.IncrementReportsDropped()
	}

	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()
	for _, o := range observers {
		o.ObserveReport(result)
	}
}

// Schedule queues job without blocking.
//
// Returns:
//   - true if the job was queued
//   - false if the dispatcher is stopped or the queue is full (the job is
//     then written to the overflow file when configured, else dropped)
func (d *ReportDispatcher) Schedule(job ReportJob) bool {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		d.recordResult("dropped")
		log.Warn().Str("ip", job.Trigger.SourceAddress.String()).Msg("Report dispatcher not running, report dropped")
		return false
	}
	select {
	case d.queue <- job:
		d.mu.RUnlock()
		return true
	default:
	}
	d.mu.RUnlock()

	d.recordResult("dropped")
	if d.overflow != nil && d.overflow.Enabled() {
		if err := d.overflow.WriteJob(job); err != nil {
			log.Error().Err(err).Msg("Failed to write report job to overflow")
			return false
		}
		d.overflowed.Add(1)
		log.Warn().Str("ip", job.Trigger.SourceAddress.String()).Msg("Report queue full, job written to overflow file")
		return false
	}
	log.Warn().Str("ip", job.Trigger.SourceAddress.String()).Msg("Report queue full, report dropped")
	return false
}

// AddSink registers a destination for generated reports.
func (d *ReportDispatcher) AddSink(sink ports.ReportSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// AddObserver registers a report result observer.
func (d *ReportDispatcher) AddObserver(o ports.EngineObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Stop shuts the workers down and closes overflow, quarantine and sinks.
// Jobs still queued are abandoned. Idempotent.
func (d *ReportDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()

		close(d.stopChan)
		d.wg.Wait()

		if pending := len(d.queue); pending > 0 {
			log.Warn().Int("pending", pending).Msg("Report dispatcher stopped with queued jobs")
		}

		if d.overflow != nil {
			if err := d.overflow.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close overflow writer")
			}
		}
		if d.quarantine != nil {
			if err := d.quarantine.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close quarantine writer")
			}
		}
		for _, sink := range d.sinks {
			if err := sink.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close report sink")
			}
		}

		log.Info().Msg("Report dispatcher stopped")
	})
}

// IsRunning returns true between Start and Stop.
func (d *ReportDispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// QueueLength returns the number of jobs waiting for a worker.
func (d *ReportDispatcher) QueueLength() int {
	return len(d.queue)
}

func (d *ReportDispatcher) QueueCapacity() int {
	return d.queueSize
}

// QueueUtilization returns the percentage of queue capacity in use.
func (d *ReportDispatcher) QueueUtilization() float64 {
	if d.queueSize == 0 {
		return 0
	}
	return float64(len(d.queue)) / float64(d.queueSize) * 100
}

// OverflowedJobs returns the number of jobs written to the overflow file.
func (d *ReportDispatcher) OverflowedJobs() int64 {
	return d.overflowed.Load()
}
