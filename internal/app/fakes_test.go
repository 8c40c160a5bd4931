package app

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Reddy-45/siem/internal/domain"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// At moves the clock to epoch + offset.
func (c *fakeClock) At(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(offset)
}

func request(addr, identity string, outcome domain.Outcome) domain.IngestRequest {
	return domain.IngestRequest{
		EventType:     "login",
		Identity:      identity,
		Outcome:       outcome,
		SourceAddress: netip.MustParseAddr(addr),
	}
}

type staticEnricher struct {
	enrichment domain.Enrichment
	calls      atomic.Int64
}

func (e *staticEnricher) Lookup(ctx context.Context, address string) (domain.Enrichment, error) {
	e.calls.Add(1)
	return e.enrichment, nil
}

func (e *staticEnricher) Name() string { return "static" }

type failingEnricher struct {
	calls atomic.Int64
}

func (e *failingEnricher) Lookup(ctx context.Context, address string) (domain.Enrichment, error) {
	e.calls.Add(1)
	return domain.NoEnrichment(), errors.New("lookup unavailable")
}

func (e *failingEnricher) Name() string { return "failing" }

type staticGenerator struct {
	narrative string
	prompts   chan string
}

func (g *staticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.prompts != nil {
		select {
		case g.prompts <- prompt:
		default:
		}
	}
	return g.narrative, nil
}

func (g *staticGenerator) Name() string { return "static" }

// hangingGenerator blocks until its context is done.
type hangingGenerator struct {
	started chan struct{}
}

func (g *hangingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (g *hangingGenerator) Name() string { return "hanging" }

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("inference backend down")
}

func (failingGenerator) Name() string { return "failing" }

type panickingGenerator struct {
	calls atomic.Int64
}

func (g *panickingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.calls.Add(1) == 1 {
		panic("generator exploded")
	}
	return "recovered narrative", nil
}

func (g *panickingGenerator) Name() string { return "panicking" }

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []ReportJob
}

func (s *recordingScheduler) Schedule(job ReportJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return true
}

func (s *recordingScheduler) Jobs() []ReportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReportJob(nil), s.jobs...)
}

type recordingObserver struct {
	mu          sync.Mutex
	verdicts    []domain.Verdict
	blocks      []domain.BlockEntry
	unblocks    int
	enrichments []string
	reports     []string
}

func (o *recordingObserver) ObserveDecision(verdict domain.Verdict, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, verdict)
}

func (o *recordingObserver) ObserveBlock(entry domain.BlockEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blocks = append(o.blocks, entry)
}

func (o *recordingObserver) ObserveUnblock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unblocks++
}

func (o *recordingObserver) ObserveEnrichment(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enrichments = append(o.enrichments, result)
}

func (o *recordingObserver) ObserveReport(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, result)
}

func (o *recordingObserver) Reports() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.reports...)
}

type recordingRecorder struct {
	mu      sync.Mutex
	events  []domain.Event
	resets  int
	failing bool
}

func (r *recordingRecorder) Record(ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("disk full")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingRecorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.resets++
	return nil
}

func (r *recordingRecorder) Close() error { return nil }
