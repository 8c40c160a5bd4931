package output

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/domain"
)

// FileEventLog mirrors the event store to a JSON array file (indent 4).
//
// Write modes:
//   - interval == 0: the file is rewritten after every recorded event
//   - interval > 0: events mark the log dirty and a background loop rewrites
//     it at most once per interval
//
// Every rewrite goes to a temporary file in the same directory that is then
// renamed over the target, so readers never see a partial array.
type FileEventLog struct {
	path     string
	snapshot func() []domain.Event
	interval time.Duration

	dirty     atomic.Bool
	writeMu   sync.Mutex // Serializes snapshot+write
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewFileEventLog creates the log. snapshot must return the current store
// contents in insertion order; it is called on every write.
func NewFileEventLog(path string, interval time.Duration, snapshot func() []domain.Event) (*FileEventLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	l := &FileEventLog{
		path:     path,
		snapshot: snapshot,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if interval > 0 {
		go l.flushLoop()
	} else {
		close(l.done)
	}
	return l, nil
}

// LoadEventLog reads a persisted event array. Records that fail validation
// (unknown outcome, invalid address, missing timestamp) are skipped with a
// warning; the rest are restored.
//
// Returns:
//   - Valid events and nil on success
//   - Empty slice and nil if the file does not exist
//   - Empty slice and an error if the file is unreadable or not a JSON
//     array; the caller starts from empty state
func LoadEventLog(path string) ([]domain.Event, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Event{}, nil
	}
	if err != nil {
		return []domain.Event{}, fmt.Errorf("failed to read event log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.Event{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return []domain.Event{}, fmt.Errorf("malformed event log %s: %w", path, err)
	}

	events := make([]domain.Event, 0, len(records))
	skipped := 0
	for i, record := range records {
		if bytes.Equal(bytes.TrimSpace(record), []byte("null")) {
			skipped++
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(record, &ev); err != nil {
			skipped++
			log.Debug().Err(err).Int("index", i).Str("path", path).Msg("Skipping invalid event record")
			continue
		}
		events = append(events, ev)
	}
	if skipped > 0 {
		log.Warn().
			Int("skipped", skipped).
			Int("restored", len(events)).
			Str("path", path).
			Msg("Event log contained invalid records")
	}
	return events, nil
}

// Record persists the store after ev was appended.
func (l *FileEventLog) Record(ev domain.Event) error {
	if l.interval > 0 {
		l.dirty.Store(true)
		return nil
	}
	return l.Flush()
}

// Reset rewrites the file as an empty array.
func (l *FileEventLog) Reset() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.dirty.Store(false)
	return l.writeLocked([]domain.Event{})
}

// Flush writes the current snapshot unconditionally.
func (l *FileEventLog) Flush() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.dirty.Store(false)

	events := l.snapshot()
	if events == nil {
		events = []domain.Event{}
	}
	return l.writeLocked(events)
}

func (l *FileEventLog) writeLocked(events []domain.Event) error {
	data, err := json.MarshalIndent(events, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode event log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write event log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close event log: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace event log: %w", err)
	}
	return nil
}

func (l *FileEventLog) flushLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !l.dirty.Load() {
				continue
			}
			if err := l.Flush(); err != nil {
				log.Error().Err(err).Str("path", l.path).Msg("Event log flush failed")
			}
		case <-l.stop:
			return
		}
	}
}

// Close stops the flush loop and writes any pending changes.
func (l *FileEventLog) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		<-l.done
		if l.dirty.Load() {
			err = l.Flush()
		}
	})
	return err
}

func (l *FileEventLog) Path() string {
	return l.path
}
