package tui

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reddy-45/siem/internal/domain"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func event(seq uint64, addr, identity string, outcome domain.Outcome, offset time.Duration) domain.Event {
	return domain.Event{
		Seq:           seq,
		EventType:     "ssh_login",
		Identity:      identity,
		Outcome:       outcome,
		SourceAddress: netip.MustParseAddr(addr),
		ObservedAt:    base.Add(offset),
	}
}

func TestModel_RanksSourcesByFailures(t *testing.T) {
	m := NewModel()
	m.Apply(Snapshot{
		Events: []domain.Event{
			event(1, "10.0.0.1", "root", domain.OutcomeFailed, 0),
			event(2, "10.0.0.2", "alice", domain.OutcomeFailed, time.Second),
			event(3, "10.0.0.1", "admin", domain.OutcomeFailed, 2*time.Second),
			event(4, "10.0.0.3", "bob", domain.OutcomeSucceeded, 3*time.Second),
			event(5, "10.0.0.1", "root", domain.OutcomeFailed, 4*time.Second),
			event(6, "10.0.0.2", "", domain.OutcomeUnknown, 5*time.Second),
		},
		Blocked:   []domain.BlockEntry{{SourceAddress: netip.MustParseAddr("10.0.0.1")}},
		FetchedAt: base,
	})

	sources := m.GetSources()
	require.Len(t, sources, 3)

	assert.Equal(t, "10.0.0.1", sources[0].Address.String())
	assert.Equal(t, 3, sources[0].Failures)
	assert.Equal(t, 3, sources[0].Events)
	assert.Equal(t, []string{"root", "admin"}, sources[0].Identities)
	assert.True(t, sources[0].Blocked)
	assert.Equal(t, base.Add(4*time.Second), sources[0].LastSeen)

	assert.Equal(t, "10.0.0.2", sources[1].Address.String())
	assert.Equal(t, 1, sources[1].Failures)
	assert.Equal(t, 2, sources[1].Events)
	assert.False(t, sources[1].Blocked)

	assert.Equal(t, 0, sources[2].Failures)
	assert.Equal(t, 4, m.FailedEvents())
}

func TestModel_TiesBrokenByRecency(t *testing.T) {
	m := NewModel()
	m.Apply(Snapshot{
		Events: []domain.Event{
			event(1, "10.0.0.1", "", domain.OutcomeFailed, 0),
			event(2, "10.0.0.2", "", domain.OutcomeFailed, time.Second),
		},
		FetchedAt: base,
	})

	sources := m.GetSources()
	require.Len(t, sources, 2)
	assert.Equal(t, "10.0.0.2", sources[0].Address.String())
}

func TestModel_LimitsSources(t *testing.T) {
	m := NewModel()
	m.MaxSources = 2

	var events []domain.Event
	for i := 0; i < 5; i++ {
		addr := netip.AddrFrom4([4]byte{10, 0, 1, byte(i)}).String()
		for j := 0; j <= i; j++ {
			events = append(events, event(uint64(len(events)+1), addr, "", domain.OutcomeFailed, 0))
		}
	}
	m.Apply(Snapshot{Events: events, FetchedAt: base})

	sources := m.GetSources()
	require.Len(t, sources, 2)
	assert.Equal(t, 5, sources[0].Failures)
	assert.Equal(t, 4, sources[1].Failures)
}

func TestModel_Rate(t *testing.T) {
	m := NewModel()

	m.Apply(Snapshot{Events: []domain.Event{event(10, "10.0.0.1", "", domain.OutcomeFailed, 0)}, FetchedAt: base})
	assert.Zero(t, m.Rate(), "first poll has no baseline")

	m.Apply(Snapshot{Events: []domain.Event{event(30, "10.0.0.1", "", domain.OutcomeFailed, 0)}, FetchedAt: base.Add(2 * time.Second)})
	assert.InDelta(t, 10.0, m.Rate(), 0.001)
	assert.InDelta(t, 10.0, m.Sparkline[len(m.Sparkline)-1], 0.001)

	m.Apply(Snapshot{FetchedAt: base.Add(3 * time.Second)})
	assert.Zero(t, m.Rate(), "cleared store resets the baseline")
}

func TestModel_ReportAndBlockLookup(t *testing.T) {
	addr := netip.MustParseAddr("192.0.2.9")
	older := &domain.IncidentReport{ID: "a", SourceAddress: addr}
	newer := &domain.IncidentReport{ID: "b", SourceAddress: addr}

	m := NewModel()
	m.Apply(Snapshot{
		Blocked:   []domain.BlockEntry{{SourceAddress: addr, TriggerCount: 5}},
		Reports:   []*domain.IncidentReport{older, {ID: "c", SourceAddress: netip.MustParseAddr("192.0.2.10")}, newer},
		FetchedAt: base,
	})

	assert.Equal(t, "b", m.ReportFor(addr).ID)
	assert.Nil(t, m.ReportFor(netip.MustParseAddr("192.0.2.11")))

	entry, ok := m.BlockFor(addr)
	require.True(t, ok)
	assert.Equal(t, 5, entry.TriggerCount)
	_, ok = m.BlockFor(netip.MustParseAddr("192.0.2.10"))
	assert.False(t, ok)
}

func TestModel_ErrorClearedByNextSnapshot(t *testing.T) {
	m := NewModel()
	m.RecordError(errors.New("connection refused"))
	assert.Error(t, m.LastError())

	m.Apply(Snapshot{FetchedAt: base})
	assert.NoError(t, m.LastError())
}

func TestModel_NextViewCycles(t *testing.T) {
	m := NewModel()
	assert.Equal(t, "EVENTS", m.ViewName())
	m.NextView()
	assert.Equal(t, "SOURCES", m.ViewName())
	m.NextView()
	assert.Equal(t, "BLOCKED", m.ViewName())
	m.NextView()
	assert.Equal(t, "EVENTS", m.ViewName())
}
