package input

import (
	"context"
	"sync"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
	"github.com/Reddy-45/siem/pkg/sanitize"
)

// FileTailer follows an event file and emits one IngestRequest per
// parseable line. Rotation is handled by reopening; unparseable lines are
// logged at debug level and skipped.
type FileTailer struct {
	filepath      string
	parser        ports.EventParser
	tail          *tail.Tail
	bufferSize    int
	fromBeginning bool
	poll          bool
	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
}

type FileTailerConfig struct {
	Path          string
	BufferSize    int  // Output channel capacity (default: 1000)
	FromBeginning bool // Read existing content instead of seeking to the end
	Poll          bool // Poll instead of inotify (network filesystems)
}

func NewFileTailer(config FileTailerConfig, parser ports.EventParser) *FileTailer {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	return &FileTailer{
		filepath:      config.Path,
		parser:        parser,
		bufferSize:    config.BufferSize,
		fromBeginning: config.FromBeginning,
		poll:          config.Poll,
		stopChan:      make(chan struct{}),
	}
}

func (t *FileTailer) Start(ctx context.Context) (<-chan domain.IngestRequest, <-chan error) {
	reqChan := make(chan domain.IngestRequest, t.bufferSize)
	errChan := make(chan error, 10)

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		close(reqChan)
		close(errChan)
		return reqChan, errChan
	}
	t.running = true
	t.stopChan = make(chan struct{})
	stop := t.stopChan
	t.mu.Unlock()

	go func() {
		defer close(reqChan)
		defer close(errChan)

		whence := 2
		if t.fromBeginning {
			whence = 0
		}

		tl, err := tail.TailFile(t.filepath, tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: false,
			Poll:      t.poll,
			Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			log.Error().Err(err).Str("file", t.filepath).Msg("Failed to tail file")
			errChan <- err
			return
		}

		t.mu.Lock()
		t.tail = tl
		t.mu.Unlock()
		defer tl.Cleanup()

		log.Info().Str("file", t.filepath).Str("format", t.parser.Format()).Msg("Started tailing event file")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Context cancelled, stopping tailer")
				_ = tl.Stop()
				return
			case <-stop:
				log.Info().Msg("Stop signal received, stopping tailer")
				return
			case line, ok := <-tl.Lines:
				if !ok {
					log.Info().Msg("Tail channel closed")
					return
				}
				if line.Err != nil {
					log.Warn().Err(line.Err).Msg("Error reading line")
					select {
					case errChan <- line.Err:
					default:
					}
					continue
				}
				if line.Text == "" {
					continue
				}

				req, err := t.parser.Parse(line.Text)
				if err != nil {
					log.Debug().Err(err).Str("line", sanitize.Line(line.Text, 200)).Msg("Failed to parse event line")
					continue
				}

				select {
				case reqChan <- req:
				case <-ctx.Done():
					_ = tl.Stop()
					return
				case <-stop:
					return
				}
			}
		}
	}()

	return reqChan, errChan
}

func (t *FileTailer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopChan)
	t.running = false

	if t.tail != nil {
		return t.tail.Stop()
	}
	return nil
}

func (t *FileTailer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
