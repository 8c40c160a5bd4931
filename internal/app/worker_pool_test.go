package app

import (
	"bufio"
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reddy-45/siem/internal/adapters/output"
	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
)

func testJob(addr string, count int, reportEpoch uint64) ReportJob {
	trigger := domain.Trigger{
		SourceAddress: netip.MustParseAddr(addr),
		Count:         count,
		Identity:      "alice",
		FirstSeen:     epoch,
		LastSeen:      epoch.Add(4 * time.Second),
	}
	return ReportJob{Trigger: trigger, Entry: trigger.BlockEntry(trigger.LastSeen), Epoch: reportEpoch}
}

type memorySink struct {
	mu      sync.Mutex
	reports []*domain.IncidentReport
	closed  bool
}

func (s *memorySink) Write(ctx context.Context, report *domain.IncidentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func startDispatcher(t *testing.T, config ReportDispatcherConfig, generator ports.TextGenerator, reports ports.ReportLog) (*ReportDispatcher, *recordingObserver) {
	t.Helper()
	d := NewReportDispatcher(config, generator, reports, nil)
	observer := &recordingObserver{}
	d.AddObserver(observer)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	return d, observer
}

func TestReportDispatcher_GeneratesAndFansOut(t *testing.T) {
	reports := output.NewReportLog()
	sink := &memorySink{}
	generator := &staticGenerator{narrative: "summary", prompts: make(chan string, 1)}
	d, observer := startDispatcher(t, ReportDispatcherConfig{WorkerCount: 2, QueueSize: 4}, generator, reports)
	d.AddSink(sink)

	require.True(t, d.Schedule(testJob("10.1.1.1", 5, reports.Epoch())))

	require.Eventually(t, func() bool { return sink.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	list := reports.List()
	require.Len(t, list, 1)
	assert.Equal(t, "summary", list[0].Narrative)
	assert.Equal(t, "static", list[0].Generator)
	assert.Equal(t, 5, list[0].AttemptCount)
	assert.Equal(t, []string{"generated"}, observer.Reports())

	prompt := <-generator.prompts
	assert.Contains(t, prompt, "10.1.1.1")
	assert.Contains(t, prompt, "Failed attempts in window: 5")
}

func TestReportDispatcher_GenerationFailureDropsReport(t *testing.T) {
	reports := output.NewReportLog()
	d, observer := startDispatcher(t, ReportDispatcherConfig{WorkerCount: 1}, failingGenerator{}, reports)

	require.True(t, d.Schedule(testJob("10.1.1.2", 5, reports.Epoch())))

	require.Eventually(t, func() bool { return len(observer.Reports()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"failed"}, observer.Reports())
	assert.Empty(t, reports.List())
	assert.Equal(t, int64(1), d.metrics.GetSnapshot().ReportsFailed)
}

func TestReportDispatcher_StaleEpochDiscarded(t *testing.T) {
	reports := output.NewReportLog()
	stale := reports.Epoch()
	reports.Clear()

	d, observer := startDispatcher(t, ReportDispatcherConfig{WorkerCount: 1}, &staticGenerator{narrative: "late"}, reports)
	require.True(t, d.Schedule(testJob("10.1.1.3", 5, stale)))

	require.Eventually(t, func() bool { return len(observer.Reports()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"discarded"}, observer.Reports())
	assert.Empty(t, reports.List())
}

func TestReportDispatcher_JobTimeout(t *testing.T) {
	reports := output.NewReportLog()
	generator := &hangingGenerator{started: make(chan struct{}, 1)}
	d, observer := startDispatcher(t, ReportDispatcherConfig{WorkerCount: 1, JobTimeout: 50 * time.Millisecond}, generator, reports)

	require.True(t, d.Schedule(testJob("10.1.1.4", 5, reports.Epoch())))

	require.Eventually(t, func() bool { return len(observer.Reports()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"failed"}, observer.Reports())
}

func TestReportDispatcher_PanicRecoveredAndQuarantined(t *testing.T) {
	dir := t.TempDir()
	quarantinePath := filepath.Join(dir, "quarantine.jsonl")
	reports := output.NewReportLog()
	generator := &panickingGenerator{}

	d, observer := startDispatcher(t, ReportDispatcherConfig{WorkerCount: 1, QuarantinePath: quarantinePath}, generator, reports)

	require.True(t, d.Schedule(testJob("10.1.1.5", 5, reports.Epoch())))
	require.Eventually(t, func() bool { return len(observer.Reports()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.True(t, d.Schedule(testJob("10.1.1.6", 6, reports.Epoch())))
	require.Eventually(t, func() bool { return len(reports.List()) == 1 }, 2*time.Second, 10*time.Millisecond, "restarted worker must keep processing")

	assert.Equal(t, []string{"failed", "generated"}, observer.Reports())
	assert.Equal(t, int64(1), d.quarantine.Count())

	data, err := os.ReadFile(quarantinePath)
	require.NoError(t, err)
	var entry QuarantineEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "generator exploded", entry.PanicError)
	assert.Contains(t, string(entry.Job), "10.1.1.5")
	assert.NotEmpty(t, entry.StackTrace)
}

func TestReportDispatcher_FullQueueOverflows(t *testing.T) {
	dir := t.TempDir()
	overflowPath := filepath.Join(dir, "overflow.jsonl")
	reports := output.NewReportLog()
	generator := &hangingGenerator{started: make(chan struct{}, 1)}

	d, observer := startDispatcher(t, ReportDispatcherConfig{WorkerCount: 1, QueueSize: 1, JobTimeout: time.Minute, OverflowPath: overflowPath}, generator, reports)

	require.True(t, d.Schedule(testJob("10.2.0.1", 5, 0)))
	<-generator.started
	require.True(t, d.Schedule(testJob("10.2.0.2", 5, 0)))

	start := time.Now()
	assert.False(t, d.Schedule(testJob("10.2.0.3", 5, 0)))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Schedule must never block")

	assert.Equal(t, int64(1), d.OverflowedJobs())
	assert.Equal(t, []string{"dropped"}, observer.Reports())
	assert.Equal(t, 1, d.QueueLength())
	assert.InDelta(t, 100.0, d.QueueUtilization(), 0.001)

	require.NoError(t, d.overflow.Flush())
	f, err := os.Open(overflowPath)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var entry OverflowEntry
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "report_job", entry.Type)
	assert.Contains(t, string(entry.Data), "10.2.0.3")
}

func TestReportDispatcher_FullQueueWithoutOverflowDrops(t *testing.T) {
	reports := output.NewReportLog()
	generator := &hangingGenerator{started: make(chan struct{}, 1)}
	d, observer := startDispatcher(t, ReportDispatcherConfig{WorkerCount: 1, QueueSize: 1, JobTimeout: time.Minute}, generator, reports)

	require.True(t, d.Schedule(testJob("10.3.0.1", 5, 0)))
	<-generator.started
	require.True(t, d.Schedule(testJob("10.3.0.2", 5, 0)))
	assert.False(t, d.Schedule(testJob("10.3.0.3", 5, 0)))

	assert.Equal(t, int64(0), d.OverflowedJobs())
	assert.Equal(t, []string{"dropped"}, observer.Reports())
	assert.Equal(t, int64(1), d.metrics.GetSnapshot().ReportsDropped)
}

func TestReportDispatcher_StopIsIdempotent(t *testing.T) {
	reports := output.NewReportLog()
	sink := &memorySink{}
	d := NewReportDispatcher(DefaultReportDispatcherConfig(), &staticGenerator{narrative: "x"}, reports, nil)
	d.AddSink(sink)

	d.Start(context.Background())
	assert.True(t, d.IsRunning())
	assert.Equal(t, 256, d.QueueCapacity())

	d.Stop()
	d.Stop()
	assert.False(t, d.IsRunning())
	assert.True(t, sink.closed)
	assert.False(t, d.Schedule(testJob("10.4.0.1", 5, 0)), "stopped dispatcher rejects jobs")
}
