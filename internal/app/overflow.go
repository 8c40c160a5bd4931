package app

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// OverflowWriter appends report jobs that did not fit in the dispatcher
// queue to a JSON-lines file, so that an operator can replay them.
type OverflowWriter struct {
	file    *os.File
	writer  *bufio.Writer
	mu      sync.Mutex
	count   atomic.Int64
	enabled bool
	path    string
}

type OverflowEntry struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewOverflowWriter opens path for appending. An empty path returns a
// disabled writer.
func NewOverflowWriter(path string) (*OverflowWriter, error) {
	if path == "" {
		return &OverflowWriter{enabled: false}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open overflow file: %w", err)
	}

	log.Info().Str("path", path).Msg("Overflow writer initialized")

	return &OverflowWriter{
		file:    file,
		writer:  bufio.NewWriterSize(file, 64*1024),
		enabled: true,
		path:    path,
	}, nil
}

func (w *OverflowWriter) WriteJob(job ReportJob) error {
	if !w.enabled {
		return nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return w.write("report_job", data)
}

func (w *OverflowWriter) write(entryType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := OverflowEntry{
		Type:      entryType,
		Timestamp: time.Now(),
		Data:      data,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}

	// Sync in batches; overflow only happens under load.
	if w.count.Add(1)%100 == 0 {
		if err := w.writer.Flush(); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
	}

	return nil
}

func (w *OverflowWriter) Flush() error {
	if !w.enabled {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *OverflowWriter) Close() error {
	if !w.enabled {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}

	if count := w.count.Load(); count > 0 {
		log.Warn().
			Int64("overflow_count", count).
			Str("path", w.path).
			Msg("Overflow file contains report jobs that were never generated")
	}

	return w.file.Close()
}

func (w *OverflowWriter) Count() int64 {
	return w.count.Load()
}

func (w *OverflowWriter) Enabled() bool {
	return w.enabled
}

// QuarantineWriter records report jobs whose processing panicked.
type QuarantineWriter struct {
	file    *os.File
	writer  *bufio.Writer
	mu      sync.Mutex
	count   atomic.Int64
	enabled bool
	path    string
}

type QuarantineEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	WorkerID   int             `json:"worker_id"`
	PanicError string          `json:"panic_error"`
	StackTrace string          `json:"stack_trace,omitempty"`
	Job        json.RawMessage `json:"job"`
}

func NewQuarantineWriter(path string) (*QuarantineWriter, error) {
	if path == "" {
		return &QuarantineWriter{enabled: false}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open quarantine file: %w", err)
	}

	log.Info().Str("path", path).Msg("Quarantine writer initialized for toxic report jobs")

	return &QuarantineWriter{
		file:    file,
		writer:  bufio.NewWriterSize(file, 16*1024),
		enabled: true,
		path:    path,
	}, nil
}

// WriteToxicJob records job together with the panic value and stack. job
// may be nil if the worker panicked outside a job.
func (w *QuarantineWriter) WriteToxicJob(workerID int, panicErr interface{}, stack []byte, job *ReportJob) error {
	if !w.enabled {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	jobData := json.RawMessage(`null`)
	if job != nil {
		data, err := json.Marshal(job)
		if err != nil {
			jobData = []byte(`{"error": "failed to serialize job"}`)
		} else {
			jobData = data
		}
	}

	qe := QuarantineEntry{
		Timestamp:  time.Now(),
		WorkerID:   workerID,
		PanicError: panicString(panicErr),
		StackTrace: string(stack),
		Job:        jobData,
	}

	line, err := json.Marshal(qe)
	if err != nil {
		return err
	}

	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}

	w.count.Add(1)

	log.Warn().
		Int("worker_id", workerID).
		Str("panic", qe.PanicError).
		Int64("quarantine_count", w.count.Load()).
		Msg("Toxic report job quarantined")

	return nil
}

func (w *QuarantineWriter) Close() error {
	if !w.enabled {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}

	if count := w.count.Load(); count > 0 {
		log.Warn().
			Int64("toxic_count", count).
			Str("path", w.path).
			Msg("Quarantine file contains toxic report jobs requiring analysis")
	}

	return w.file.Close()
}

func (w *QuarantineWriter) Count() int64 {
	return w.count.Load()
}

func (w *QuarantineWriter) Enabled() bool {
	return w.enabled
}

func panicString(v interface{}) string {
	switch p := v.(type) {
	case nil:
		return "unknown panic"
	case error:
		return p.Error()
	case string:
		return p
	default:
		return fmt.Sprintf("%v", p)
	}
}
