package ports

import "context"

// TextGenerator is an opaque narrative synthesis capability backed by a local
// or remote inference engine.
//
// Implementations:
//   - CommandGenerator: runs a local process, prompt on stdin, narrative on stdout
//   - OllamaGenerator: calls the Ollama HTTP generate API
//
// Contract:
//   - No latency guarantee; callers bound each call with a context deadline
//   - Returns an error on process/transport failure, timeout or empty output
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}
