package ports

import "github.com/Reddy-45/siem/internal/domain"

// EventRecorder mirrors the event store to durable media. Record is called
// for every stored event in insertion order; Reset is called when the
// engine clears all state.
type EventRecorder interface {
	Record(ev domain.Event) error
	Reset() error
	Close() error
}
