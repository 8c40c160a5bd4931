package output

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/domain"
)

// JSONReportSink appends incident reports as JSON lines to a file or stdout.
//
// Features:
//   - Buffered writes (64KB)
//   - Periodic flush every second
//   - File sync on flush for durability
type JSONReportSink struct {
	bufWriter *bufio.Writer // Buffered writer (64KB)
	file      *os.File      // File handle (nil for stdout)
	encoder   *json.Encoder // Reused encoder
	mu        sync.Mutex    // Protects writes
	stopFlush chan struct{} // Stop periodic flush
	closeOnce sync.Once
}

// JSONReportSinkConfig configures JSON-lines report output.
type JSONReportSinkConfig struct {
	FilePath string // Output file path ("-" for stdout)
}

// NewJSONReportSink opens the report file for appending.
//
// File Permissions: 0600 (owner read/write only)
func NewJSONReportSink(config JSONReportSinkConfig) (*JSONReportSink, error) {
	var writer io.Writer
	var file *os.File

	switch config.FilePath {
	case "-":
		writer = os.Stdout
	case "":
		writer = io.Discard
	default:
		var err error
		file, err = os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	bufWriter := bufio.NewWriterSize(writer, 64*1024)
	sink := &JSONReportSink{
		bufWriter: bufWriter,
		file:      file,
		encoder:   json.NewEncoder(bufWriter),
		stopFlush: make(chan struct{}),
	}

	go sink.periodicFlush()
	return sink, nil
}

func (s *JSONReportSink) periodicFlush() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Warn().Err(err).Msg("Report sink flush failed")
			}
		case <-s.stopFlush:
			return
		}
	}
}

// Write encodes report as one JSON line.
func (s *JSONReportSink) Write(ctx context.Context, report *domain.IncidentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoder.Encode(report)
}

// Flush forces buffered data to disk.
func (s *JSONReportSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bufWriter.Flush(); err != nil {
		return err
	}
	if s.file != nil {
		return s.file.Sync()
	}
	return nil
}

// Close stops periodic flushing, flushes the buffer and closes the file.
func (s *JSONReportSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopFlush)

		s.mu.Lock()
		defer s.mu.Unlock()

		if err = s.bufWriter.Flush(); err != nil {
			return
		}
		if s.file != nil {
			if err = s.file.Sync(); err != nil {
				return
			}
			err = s.file.Close()
		}
	})
	return err
}
