package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
)

// Ingester is the ingestion boundary a Pump feeds. Implemented by Engine.
type Ingester interface {
	Ingest(ctx context.Context, req domain.IngestRequest) domain.Decision
}

// Pump moves ingestion requests from an EventSource into the engine, one
// at a time and in source order.
type Pump struct {
	name     string
	source   ports.EventSource
	ingester Ingester

	accepted atomic.Int64
	rejected atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewPump(name string, source ports.EventSource, ingester Ingester) *Pump {
	return &Pump{
		name:     name,
		source:   source,
		ingester: ingester,
	}
}

// Start begins consuming the source. Idempotent.
func (p *Pump) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	reqChan, errChan := p.source.Start(p.ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.process(reqChan, errChan)
	}()

	log.Info().Str("source", p.name).Msg("Event pump started")
	return nil
}

func (p *Pump) process(reqChan <-chan domain.IngestRequest, errChan <-chan error) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			log.Warn().Err(err).Str("source", p.name).Msg("Error reading event source")
		case req, ok := <-reqChan:
			if !ok {
				log.Info().Str("source", p.name).Msg("Event source closed")
				return
			}
			if p.ingester.Ingest(p.ctx, req).IsAccepted() {
				p.accepted.Add(1)
			} else {
				p.rejected.Add(1)
			}
		}
	}
}

// Stop cancels consumption, stops the source and waits for the loop.
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if err := p.source.Stop(); err != nil {
		log.Error().Err(err).Str("source", p.name).Msg("Error stopping event source")
	}

	p.wg.Wait()

	log.Info().
		Str("source", p.name).
		Int64("accepted", p.accepted.Load()).
		Int64("rejected", p.rejected.Load()).
		Msg("Event pump stopped")
}

// Run starts the pump and blocks until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *Pump) Accepted() int64 { return p.accepted.Load() }
func (p *Pump) Rejected() int64 { return p.rejected.Load() }

func (p *Pump) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
