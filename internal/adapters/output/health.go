package output

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// QueueStats is the view of the report dispatcher the health check needs.
type QueueStats interface {
	IsRunning() bool
	QueueLength() int
	QueueCapacity() int
	QueueUtilization() float64
	OverflowedJobs() int64
}

type HealthStatus struct {
	Healthy         bool          `json:"healthy"`
	Status          string        `json:"status"`
	QueueLength     int           `json:"queue_length"`
	QueueCapacity   int           `json:"queue_capacity"`
	Utilization     float64       `json:"utilization_percent"`
	OverflowedItems int64         `json:"overflowed_items"`
	Uptime          time.Duration `json:"-"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	Reason          string        `json:"reason,omitempty"`
}

// HealthChecker reports readiness from report-queue saturation. Ingestion
// itself never depends on the queue, so a saturated queue degrades reports
// only; the checker still flags it for operators.
type HealthChecker struct {
	queue     QueueStats
	startTime time.Time

	lastCheck     HealthStatus
	lastCheckTime time.Time
	lastCheckMu   sync.RWMutex
	checkInterval time.Duration
}

type HealthCheckerConfig struct {
	CheckInterval time.Duration // Cache duration for results (default: 5s)
}

func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		CheckInterval: 5 * time.Second,
	}
}

// NewHealthChecker creates a checker. queue may be nil when reports are
// disabled; the service is then healthy whenever it is serving.
func NewHealthChecker(queue QueueStats, config HealthCheckerConfig) *HealthChecker {
	return &HealthChecker{
		queue:         queue,
		checkInterval: config.CheckInterval,
		startTime:     time.Now(),
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.lastCheckMu.RLock()
	if h.checkInterval > 0 && !h.lastCheckTime.IsZero() && time.Since(h.lastCheckTime) < h.checkInterval {
		cached := h.lastCheck
		h.lastCheckMu.RUnlock()
		return cached
	}
	h.lastCheckMu.RUnlock()

	status := h.performCheck()

	h.lastCheckMu.Lock()
	h.lastCheck = status
	h.lastCheckTime = time.Now()
	h.lastCheckMu.Unlock()

	return status
}

func (h *HealthChecker) performCheck() HealthStatus {
	status := HealthStatus{
		Uptime: time.Since(h.startTime),
	}
	status.UptimeSeconds = status.Uptime.Seconds()

	if h.queue == nil {
		status.Healthy = true
		status.Status = "HEALTHY"
		return status
	}

	if !h.queue.IsRunning() {
		status.Status = "OFFLINE"
		status.Reason = "report dispatcher not running"
		return status
	}

	status.QueueLength = h.queue.QueueLength()
	status.QueueCapacity = h.queue.QueueCapacity()
	status.Utilization = h.queue.QueueUtilization()
	status.OverflowedItems = h.queue.OverflowedJobs()

	if status.Utilization >= 95 {
		status.Status = "SATURATED"
		status.Reason = fmt.Sprintf("report queue utilization at %.1f%%", status.Utilization)
		return status
	}

	status.Healthy = true
	if status.Utilization >= 80 {
		status.Status = "DEGRADED"
		status.Reason = fmt.Sprintf("report queue utilization elevated at %.1f%%", status.Utilization)
	} else {
		status.Status = "HEALTHY"
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
