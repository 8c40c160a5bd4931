package app

import (
	"context"
	"errors"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reddy-45/siem/internal/domain"
)

type sliceSource struct {
	requests []domain.IngestRequest
	errs     []error
	stopped  atomic.Bool
}

func (s *sliceSource) Start(ctx context.Context) (<-chan domain.IngestRequest, <-chan error) {
	reqChan := make(chan domain.IngestRequest, len(s.requests))
	errChan := make(chan error, len(s.errs))
	for _, err := range s.errs {
		errChan <- err
	}
	close(errChan)
	for _, req := range s.requests {
		reqChan <- req
	}
	close(reqChan)
	return reqChan, errChan
}

func (s *sliceSource) Stop() error {
	s.stopped.Store(true)
	return nil
}

func TestPump_FeedsEngine(t *testing.T) {
	source := &sliceSource{errs: []error{errors.New("bad line")}}
	for i := 0; i < 7; i++ {
		source.requests = append(source.requests, request("10.5.0.1", "root", domain.OutcomeFailed))
	}

	engine, _ := newTestEngine(t, EngineOptions{Clock: time.Now})
	pump := NewPump("test", source, engine)

	require.NoError(t, pump.Start(context.Background()))
	require.Eventually(t, func() bool { return pump.Accepted()+pump.Rejected() == 7 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(5), pump.Accepted())
	assert.Equal(t, int64(2), pump.Rejected())
	assert.True(t, engine.IsBlocked(netip.MustParseAddr("10.5.0.1")))

	pump.Stop()
	assert.True(t, source.stopped.Load())
	assert.False(t, pump.IsRunning())
}

func TestPump_RunStopsOnCancel(t *testing.T) {
	source := &sliceSource{}
	engine, _ := newTestEngine(t, EngineOptions{})
	pump := NewPump("test", source, engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, source.stopped.Load())
}
