// Package textgen provides narrative synthesis backends for incident reports.
//
// Backends:
//   - CommandGenerator: local inference process (e.g. `ollama run llama3`),
//     prompt on stdin, narrative on stdout
//   - OllamaGenerator: Ollama HTTP API (/api/generate, non-streaming)
//
// Both backends are time-bounded by the caller's context and wrapped in a
// circuit breaker so a broken model does not consume a worker per report.
package textgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/pkg/sanitize"
)

const (
	defaultMaxOutputBytes = 1 << 20
	defaultWaitDelay      = 2 * time.Second
	stderrTailBytes       = 512
)

var ErrNoCommand = errors.New("text generator command is empty")

// CommandConfig configures the subprocess backend.
type CommandConfig struct {
	Command        []string      // argv, e.g. ["ollama", "run", "llama3"]
	MaxOutputBytes int           // Output beyond this is drained and discarded (default: 1 MiB)
	WaitDelay      time.Duration // Grace period for pipes after the process is killed (default: 2s)
}

// CommandGenerator runs one process per prompt.
//
// Process handling:
//   - The prompt is written to stdin, which is then closed
//   - stdout and stderr are drained to completion so the child never blocks
//     on a full pipe
//   - Context cancellation kills the process; WaitDelay bounds how long Run
//     waits for orphaned pipe holders afterwards
type CommandGenerator struct {
	argv      []string
	maxOutput int
	waitDelay time.Duration
	cb        *gobreaker.CircuitBreaker[string]
}

func NewCommandGenerator(cfg CommandConfig) (*CommandGenerator, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, ErrNoCommand
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	return &CommandGenerator{
		argv:      append([]string(nil), cfg.Command...),
		maxOutput: cfg.MaxOutputBytes,
		waitDelay: cfg.WaitDelay,
		cb:        newBreaker("textgen-command"),
	}, nil
}

func (g *CommandGenerator) Name() string {
	return "command:" + g.argv[0]
}

func (g *CommandGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.cb.Execute(func() (string, error) {
		return g.run(ctx, prompt)
	})
}

func (g *CommandGenerator) run(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, g.argv[0], g.argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = g.waitDelay

	stdout := &cappedBuffer{limit: g.maxOutput}
	stderr := &cappedBuffer{limit: stderrTailBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("text generator %s: %w", g.argv[0], ctxErr)
	}
	if err != nil {
		return "", fmt.Errorf("text generator %s: %w (stderr: %s)",
			g.argv[0], err, sanitize.Line(stderr.String(), stderrTailBytes))
	}

	narrative := sanitize.Narrative(stdout.String(), 0)
	if narrative == "" {
		return "", domain.ErrEmptyNarrative
	}

	log.Debug().
		Str("generator", g.Name()).
		Dur("duration", time.Since(start)).
		Int("bytes", stdout.Len()).
		Msg("Narrative generated")
	return narrative, nil
}

// cappedBuffer keeps the first limit bytes and silently discards the rest.
// Write always reports full success so the copying goroutine keeps draining.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// newBreaker opens after 3 consecutive failures and retries after a
// minute. Context cancellations by the caller count as failures: a model
// that keeps timing out is as unusable as one that errors.
func newBreaker(name string) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})
}
