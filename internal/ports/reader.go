package ports

import (
	"context"

	"github.com/Reddy-45/siem/internal/domain"
)

// EventSource produces ingestion requests from an upstream feed (file tail,
// demo generator). Requests are delivered on the returned channel until ctx
// is cancelled or Stop is called.
type EventSource interface {
	Start(ctx context.Context) (<-chan domain.IngestRequest, <-chan error)
	Stop() error
}

type EventParser interface {
	Parse(line string) (domain.IngestRequest, error)
	Format() string
}
